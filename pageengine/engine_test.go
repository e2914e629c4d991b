package pageengine

import (
	"encoding/json"
	"testing"

	"github.com/kubux/whiteboard/action"
	"github.com/kubux/whiteboard/hashing"
)

func draw(uuid string) action.Action {
	return action.Action{Type: action.TypeDraw, UUID: uuid, Element: json.RawMessage(`{}`)}
}

// Scenario 1: chain integrity.
func TestChainIntegrity(t *testing.T) {
	p := New("P")
	a, b := draw("A"), draw("B")

	r1 := p.ApplyEdit(a)
	if !r1.OK {
		t.Fatalf("draw A declined: %s", r1.Reason)
	}
	r2 := p.ApplyEdit(b)
	if !r2.OK {
		t.Fatalf("draw B declined: %s", r2.Reason)
	}

	wantAfterB := hashing.Next(hashing.Next(hashing.Of(hashing.Str("P")), a.Value()), b.Value())
	if r2.AfterHash != wantAfterB {
		t.Fatalf("after-hash mismatch: got %s want %s", r2.AfterHash, wantAfterB)
	}
	visible := p.Visible()
	if len(visible) != 2 {
		t.Fatalf("expected both uuids visible, got %v", visible)
	}
}

// Scenario 2: undo/redo parity.
func TestUndoRedoParity(t *testing.T) {
	p := New("P")
	a, b := draw("A"), draw("B")
	p.ApplyEdit(a)
	afterAB := p.ApplyEdit(b)

	u := p.ApplyUndo("B")
	if !u.OK {
		t.Fatalf("undo B declined: %s", u.Reason)
	}
	if p.Present != 1 {
		t.Fatalf("present after undo = %d, want 1", p.Present)
	}
	if len(p.History) != 2 {
		t.Fatalf("history length changed on undo: %d", len(p.History))
	}
	if _, ok := p.Visible()["A"]; !ok {
		t.Fatalf("A should still be visible after undoing B")
	}
	if _, ok := p.Visible()["B"]; ok {
		t.Fatalf("B should not be visible after undo")
	}

	r := p.ApplyRedo("B")
	if !r.OK {
		t.Fatalf("redo B declined: %s", r.Reason)
	}
	if r.AfterHash != afterAB.AfterHash {
		t.Fatalf("redo did not restore the same after-hash: got %s want %s", r.AfterHash, afterAB.AfterHash)
	}
	if len(p.Visible()) != 2 {
		t.Fatalf("expected both visible after redo")
	}
}

// Scenario 3: truncated future.
func TestTruncatedFuture(t *testing.T) {
	p := New("P")
	a, b, c := draw("A"), draw("B"), draw("C")
	p.ApplyEdit(a)
	p.ApplyEdit(b)
	p.ApplyUndo("B")
	p.ApplyEdit(c)

	if len(p.History) != 2 {
		t.Fatalf("history length = %d, want 2 (A, C)", len(p.History))
	}
	if p.History[0].UUID != "A" || p.History[1].UUID != "C" {
		t.Fatalf("history = %v, want [A, C]", p.History)
	}
	if len(p.Hashes) != 3 {
		t.Fatalf("hashes length = %d, want 3", len(p.Hashes))
	}
	wantTip := hashing.Next(hashing.Next(hashing.Of(hashing.Str("P")), a.Value()), c.Value())
	if p.CurrentHash() != wantTip {
		t.Fatalf("current hash does not reflect recomputed chain over A, C")
	}
}

func TestUndoAtZeroDeclines(t *testing.T) {
	p := New("P")
	r := p.ApplyUndo("anything")
	if r.OK || r.Reason != ReasonUndoBoundary {
		t.Fatalf("expected undo-boundary decline, got %+v", r)
	}
}

func TestRedoAtTipDeclines(t *testing.T) {
	p := New("P")
	p.ApplyEdit(draw("A"))
	r := p.ApplyRedo("A")
	if r.OK || r.Reason != ReasonRedoBoundary {
		t.Fatalf("expected redo-boundary decline, got %+v", r)
	}
}

func TestUndoWrongTargetDeclines(t *testing.T) {
	p := New("P")
	p.ApplyEdit(draw("A"))
	r := p.ApplyUndo("not-A")
	if r.OK || r.Reason != ReasonUndoBoundary {
		t.Fatalf("expected undo-boundary decline for wrong target, got %+v", r)
	}
}

func TestEraseNonVisibleDeclines(t *testing.T) {
	p := New("P")
	erase := action.Action{Type: action.TypeErase, UUID: "e1", Target: "missing"}
	r := p.ApplyEdit(erase)
	if r.OK || r.Reason != ReasonCannotApply {
		t.Fatalf("expected cannot-apply decline, got %+v", r)
	}
}

func TestSliceFromForReplay(t *testing.T) {
	p := New("P")
	p.ApplyEdit(draw("A"))
	p.ApplyEdit(draw("B"))

	actions, hashes, ok := p.SliceFrom(1)
	if !ok {
		t.Fatalf("slice from 1 should be valid")
	}
	if len(actions) != 1 || actions[0].UUID != "B" {
		t.Fatalf("expected [B], got %v", actions)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 hashes (before+after B), got %d", len(hashes))
	}

	if _, _, ok := p.SliceFrom(99); ok {
		t.Fatalf("expected out-of-range slice to fail")
	}
}

func TestConsistencyCheckAndRebuild(t *testing.T) {
	p := New("P")
	p.ApplyEdit(draw("A"))
	if !p.CheckConsistency() {
		t.Fatalf("expected consistent state after a normal edit")
	}
	// simulate corruption
	delete(p.state.Visible, "A")
	if p.CheckConsistency() {
		t.Fatalf("expected inconsistency to be detected")
	}
	if err := p.RebuildFromHistory(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !p.CheckConsistency() {
		t.Fatalf("expected consistency restored after rebuild")
	}
}

func TestRestoreRecompilesVisibleFromHistory(t *testing.T) {
	genesis := hashing.Of(hashing.Str("P"))
	a := draw("A")
	h1 := hashing.Next(genesis, a.Value())

	p, err := Restore("P", []action.Action{a}, 1, []hashing.Digest{genesis, h1})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := p.Visible()["A"]; !ok {
		t.Fatalf("expected A visible after restore")
	}
}

func TestRestoreRejectsBadLengths(t *testing.T) {
	if _, err := Restore("P", []action.Action{draw("A")}, 1, nil); err == nil {
		t.Fatalf("expected restore to reject mismatched hashes length")
	}
}
