// Package pageengine implements the per-page action-log engine: history,
// undo/redo cursor, hash chain, and materialized visual state (spec
// section 4.3). Grounded on storage/table.go's mutex-guarded mutable shard
// state, generalized from column storage to an action log.
package pageengine

import (
	"fmt"

	"github.com/kubux/whiteboard/action"
	"github.com/kubux/whiteboard/hashing"
	"github.com/kubux/whiteboard/visual"
)

// Page holds the full reachable state of a single page. All mutating
// methods assume the caller already holds whatever external
// serialization discipline the board requires (spec section 5: a
// per-board task inbox linearizes mutating operations); Page itself does
// not lock, so that board-level code can batch several related operations
// without re-entrant locking concerns.
type Page struct {
	ID      string
	History []action.Action
	Present int
	Hashes  []hashing.Digest

	state visual.State
}

// New creates a fresh page: hashes[0] = hash(pageId), empty history,
// present at 0, empty visual state.
func New(id string) *Page {
	return &Page{
		ID:      id,
		History: nil,
		Present: 0,
		Hashes:  []hashing.Digest{hashing.Of(hashing.Str(id))},
		state:   visual.New(),
	}
}

// Restore reconstructs a Page from persisted fields (used when loading
// from disk). The caller is responsible for having validated that hashes
// and history satisfy invariant 1 (len(hashes) == len(history)+1); Restore
// recomputes the materialized visual state by compiling history[0:present]
// rather than trusting a persisted visible set blindly, so a corrupted or
// stale visible blob on disk self-heals on load.
func Restore(id string, history []action.Action, present int, hashes []hashing.Digest) (*Page, error) {
	if len(hashes) != len(history)+1 {
		return nil, fmt.Errorf("pageengine: restore %s: len(hashes)=%d, want %d", id, len(hashes), len(history)+1)
	}
	if present < 0 || present > len(history) {
		return nil, fmt.Errorf("pageengine: restore %s: present=%d out of range [0,%d]", id, present, len(history))
	}
	state, err := visual.Compile(history[:present])
	if err != nil {
		return nil, fmt.Errorf("pageengine: restore %s: recompiling visual state: %w", id, err)
	}
	return &Page{ID: id, History: history, Present: present, Hashes: hashes, state: state}, nil
}

// CurrentHash returns hashes[present], the "current" hash per spec.
func (p *Page) CurrentHash() hashing.Digest { return p.Hashes[p.Present] }

// Visible returns a copy of the materialized visible set.
func (p *Page) Visible() map[string]struct{} { return p.state.VisibleSet() }

// HistorySnapshot returns a copy of the full history, for full-page
// transfer.
func (p *Page) HistorySnapshot() []action.Action {
	out := make([]action.Action, len(p.History))
	copy(out, p.History)
	return out
}

// ApplyResult is the outcome of a mutating operation.
type ApplyResult struct {
	OK         bool
	Reason     string
	BeforeHash hashing.Digest
	AfterHash  hashing.Digest
}

// ApplyEdit implements spec section 4.3's apply_edit: commit the action
// onto the current visual state; on success, truncate any undone future,
// append the action and its chained hash, and advance present. On
// failure, the page is left completely unchanged.
func (p *Page) ApplyEdit(a action.Action) ApplyResult {
	if !a.IsEdit() {
		return ApplyResult{OK: false, Reason: ReasonUnknownType}
	}

	candidate := p.state.Clone()
	if err := visual.Commit(&candidate, a); err != nil {
		return ApplyResult{OK: false, Reason: ReasonCannotApply}
	}

	before := p.Hashes[p.Present]

	// Classical undo/redo truncation: discard any entries at or beyond
	// present before appending (invariant 3).
	p.History = append(p.History[:p.Present], a)
	p.Hashes = append(p.Hashes[:p.Present+1], hashing.Next(before, a.Value()))
	p.Present++
	p.state = candidate

	return ApplyResult{OK: true, BeforeHash: before, AfterHash: p.Hashes[p.Present]}
}

// ApplyUndo implements spec section 4.3's apply_undo: accepted iff
// present > 0 and the action immediately before the cursor has the given
// uuid. History and hashes are untouched; only present moves and the
// visual state is reverted.
func (p *Page) ApplyUndo(targetUUID string) ApplyResult {
	if p.Present == 0 || p.History[p.Present-1].UUID != targetUUID {
		return ApplyResult{OK: false, Reason: ReasonUndoBoundary}
	}
	target := p.History[p.Present-1]
	before := p.Hashes[p.Present]
	if err := visual.Revert(&p.state, target); err != nil {
		// The action at present-1 was committed successfully once; reverting
		// it must succeed by construction. Anything else is an internal
		// invariant violation, not a client-facing conflict.
		panic(fmt.Sprintf("pageengine: invariant violation reverting %s on page %s: %v", target.UUID, p.ID, err))
	}
	p.Present--
	return ApplyResult{OK: true, BeforeHash: before, AfterHash: p.Hashes[p.Present]}
}

// ApplyRedo implements spec section 4.3's apply_redo, the boundary
// symmetric to ApplyUndo.
func (p *Page) ApplyRedo(targetUUID string) ApplyResult {
	if p.Present == len(p.History) || p.History[p.Present].UUID != targetUUID {
		return ApplyResult{OK: false, Reason: ReasonRedoBoundary}
	}
	target := p.History[p.Present]
	before := p.Hashes[p.Present]
	if err := visual.Commit(&p.state, target); err != nil {
		panic(fmt.Sprintf("pageengine: invariant violation redoing %s on page %s: %v", target.UUID, p.ID, err))
	}
	p.Present++
	return ApplyResult{OK: true, BeforeHash: before, AfterHash: p.Hashes[p.Present]}
}

// SliceFrom returns history[from:] and hashes[from:], used to answer a
// replay request resolved from the stored log. ok is false if from is out
// of range, in which case the caller should fall back to a full-page
// response.
func (p *Page) SliceFrom(from int) (actions []action.Action, hashes []hashing.Digest, ok bool) {
	if from < 0 || from > len(p.History) {
		return nil, nil, false
	}
	actions = make([]action.Action, len(p.History)-from)
	copy(actions, p.History[from:])
	hashes = make([]hashing.Digest, len(p.Hashes)-from)
	copy(hashes, p.Hashes[from:])
	return actions, hashes, true
}

// CheckConsistency recomputes visible from compile(history[0:present]) and
// compares it against the materialized state, per spec section 9's
// "fix-inconsistent-state" requirement. It returns false (and, in
// production, logs and rebuilds) only if an internal bug has desynced the
// two; it never fails due to client input.
func (p *Page) CheckConsistency() bool {
	compiled, err := visual.Compile(p.History[:p.Present])
	if err != nil {
		return false
	}
	return compiled.Equal(p.state)
}

// RebuildFromHistory recompiles the visual state from scratch and replaces
// the materialized state. Called when CheckConsistency reports a mismatch.
func (p *Page) RebuildFromHistory() error {
	compiled, err := visual.Compile(p.History[:p.Present])
	if err != nil {
		return err
	}
	p.state = compiled
	return nil
}
