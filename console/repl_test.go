package console

import (
	"strings"
	"testing"

	"github.com/kubux/whiteboard/boardregistry"
	"github.com/kubux/whiteboard/persistence"
)

type fakeFlushable struct {
	flushed bool
	stats   string
}

func (f *fakeFlushable) FlushAll()     { f.flushed = true }
func (f *fakeFlushable) Stats() string { return f.stats }

func newTestDeps(t *testing.T) (Deps, *fakeFlushable, *fakeFlushable) {
	t.Helper()
	reg := boardregistry.New()
	reg.Register(boardregistry.NewBoard("b1", "digest", "p1"))
	backend, err := persistence.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	backend.Save(persistence.BoardKey("b1"), []byte("{}"))
	backend.Save(persistence.PageKey("p1"), []byte("{}"))

	pages := &fakeFlushable{stats: "1/10 resident"}
	boards := &fakeFlushable{stats: "1/10 resident"}
	return Deps{Boards: reg, Backend: backend, Pages: pages, BoardsFl: boards}, pages, boards
}

func TestCmdBoardsLists(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	out := dispatch(deps, "boards")
	if !strings.Contains(out, "b1") {
		t.Fatalf("expected boards output to mention b1, got %q", out)
	}
}

func TestCmdPagesUnknownBoard(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	out := dispatch(deps, "pages missing")
	if !strings.Contains(out, "no such board") {
		t.Fatalf("expected unknown-board message, got %q", out)
	}
}

func TestCmdPagesListsOrder(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	out := dispatch(deps, "pages b1")
	if out != "p1" {
		t.Fatalf("expected p1, got %q", out)
	}
}

func TestCmdFlushFlushesBoth(t *testing.T) {
	deps, pages, boards := newTestDeps(t)
	dispatch(deps, "flush")
	if !pages.flushed || !boards.flushed {
		t.Fatalf("expected both caches to be flushed")
	}
}

func TestCmdStatsReportsBoth(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	out := dispatch(deps, "stats")
	if !strings.Contains(out, "pages:") || !strings.Contains(out, "boards:") {
		t.Fatalf("expected both sections in stats output, got %q", out)
	}
}

func TestCmdUnknown(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	out := dispatch(deps, "frobnicate")
	if !strings.Contains(out, "unknown command") {
		t.Fatalf("expected unknown-command message, got %q", out)
	}
}
