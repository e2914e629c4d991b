// Package boardregistry holds the board lookup table and the per-board
// page-order + deletion redirect graph (spec section 4.4).
package boardregistry

import (
	"fmt"
	"sync"

	"github.com/launix-de/NonLockingReadMap"
)

// Board is a single registered board: its password digest, its live page
// order, and its deletion redirect map. Board is read far more often than
// written (every proposal resolves a page id against it), so lookups go
// through a NonLockingReadMap keyed by id; mutations to a board's own
// fields (page order, redirects) are guarded by boardMu, since the
// read-optimized map only protects the top-level id -> *Board index, not
// the Board's own contents.
type Board struct {
	ID             string
	PasswordDigest string

	boardMu sync.Mutex
	// pageOrder is the live, ordered sequence of page ids. Each id
	// appears at most once (invariant 5).
	pageOrder []string
	// redirect maps a deleted page id to its replacement, forming the
	// deletion redirect graph (spec section 4.4).
	redirect map[string]string
}

// GetKey implements NonLockingReadMap.KeyGetter.
func (b *Board) GetKey() string { return b.ID }

// ComputeSize implements NonLockingReadMap.Sizable with a rough estimate,
// used only for console/log memory reporting.
func (b *Board) ComputeSize() uint {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	sz := uint(64 + len(b.ID) + len(b.PasswordDigest))
	for _, p := range b.pageOrder {
		sz += uint(len(p))
	}
	for k, v := range b.redirect {
		sz += uint(len(k) + len(v))
	}
	return sz
}

// redirectStepBound caps the deletion-redirect walk in Resolve, per spec
// section 4.4's "guarded by a large step bound, e.g., 10^5".
const redirectStepBound = 100000

// NewBoard creates a board with a single initial page.
func NewBoard(id, passwordDigest, firstPageID string) *Board {
	return &Board{
		ID:             id,
		PasswordDigest: passwordDigest,
		pageOrder:      []string{firstPageID},
		redirect:       make(map[string]string),
	}
}

// Restore reconstructs a Board from persisted fields: the board file's
// {passwd, pageOrder} plus whatever entries of the site-wide deletion map
// belong to this board's page ids. Used when loading a board from disk
// rather than creating one fresh.
func Restore(id, passwordDigest string, pageOrder []string, redirect map[string]string) *Board {
	if len(pageOrder) == 0 {
		pageOrder = []string{id}
	}
	ownRedirect := make(map[string]string, len(redirect))
	for k, v := range redirect {
		ownRedirect[k] = v
	}
	return &Board{
		ID:             id,
		PasswordDigest: passwordDigest,
		pageOrder:      pageOrder,
		redirect:       ownRedirect,
	}
}

// RedirectSnapshot returns a copy of this board's deletion redirect map,
// for persisting into the site-wide deletion-map file.
func (b *Board) RedirectSnapshot() map[string]string {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	out := make(map[string]string, len(b.redirect))
	for k, v := range b.redirect {
		out[k] = v
	}
	return out
}

// PageOrder returns a copy of the current live page order.
func (b *Board) PageOrder() []string {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	out := make([]string, len(b.pageOrder))
	copy(out, b.pageOrder)
	return out
}

// FirstPage returns pageOrder[0]. Valid for every live board: a board is
// never left with zero pages (the last page of a board is non-deletable).
func (b *Board) FirstPage() string {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	return b.pageOrder[0]
}

// HasPage reports whether pageID is currently live on this board.
func (b *Board) HasPage(pageID string) bool {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	return b.indexOf(pageID) >= 0
}

func (b *Board) indexOf(pageID string) int {
	for i, id := range b.pageOrder {
		if id == pageID {
			return i
		}
	}
	return -1
}

// InsertPageAfter implements the insert-page policy (spec section 4.4):
// a new page is inserted immediately after currentPageID. It errors if
// currentPageID is not live or newPageID already appears in the order
// (invariant 5: each id at most once).
func (b *Board) InsertPageAfter(currentPageID, newPageID string) error {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	if b.indexOf(newPageID) >= 0 {
		return fmt.Errorf("boardregistry: page %s already present on board %s", newPageID, b.ID)
	}
	at := b.indexOf(currentPageID)
	if at < 0 {
		return fmt.Errorf("boardregistry: current page %s not live on board %s", currentPageID, b.ID)
	}
	out := make([]string, 0, len(b.pageOrder)+1)
	out = append(out, b.pageOrder[:at+1]...)
	out = append(out, newPageID)
	out = append(out, b.pageOrder[at+1:]...)
	b.pageOrder = out
	return nil
}

// DeletePage implements the delete-page policy (spec section 4.4): the
// last page of a board is non-deletable (ErrLastPage); otherwise the page
// is removed from the order and a redirect is recorded to
// pageOrder[min(removed_index, len-1)] evaluated *after* removal.
func (b *Board) DeletePage(pageID string) error {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()
	if len(b.pageOrder) <= 1 {
		return ErrLastPage
	}
	at := b.indexOf(pageID)
	if at < 0 {
		return fmt.Errorf("boardregistry: page %s not live on board %s", pageID, b.ID)
	}
	b.pageOrder = append(b.pageOrder[:at], b.pageOrder[at+1:]...)
	replacementIdx := at
	if replacementIdx >= len(b.pageOrder) {
		replacementIdx = len(b.pageOrder) - 1
	}
	b.redirect[pageID] = b.pageOrder[replacementIdx]
	return nil
}

// ErrLastPage is returned by DeletePage when asked to delete a board's
// only remaining page.
var ErrLastPage = fmt.Errorf("cannot delete last page of a board")

// Resolve implements spec section 4.4's resolve(page_id, board): if
// page_id is live, return it unchanged. Otherwise follow the redirect
// chain, rejecting any edge that would revisit an already-visited node
// (cycle detection) and halting after redirectStepBound hops. If the
// chain ends on something that is not itself a live page (a dangling or
// cyclic redirect), fall back to pageOrder[0].
func (b *Board) Resolve(pageID string) string {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()

	if b.indexOf(pageID) >= 0 {
		return pageID
	}

	visited := map[string]struct{}{pageID: {}}
	current := pageID
	for step := 0; step < redirectStepBound; step++ {
		next, ok := b.redirect[current]
		if !ok {
			break
		}
		if _, seen := visited[next]; seen {
			break
		}
		visited[next] = struct{}{}
		current = next
		if b.indexOf(current) >= 0 {
			return current
		}
	}
	return b.pageOrder[0]
}

// Registry is the process-wide board lookup table.
type Registry struct {
	boards NonLockingReadMap.NonLockingReadMap[Board, string]
}

// New creates an empty board registry.
func New() *Registry {
	return &Registry{boards: NonLockingReadMap.New[Board, string]()}
}

// Get returns the board with the given id, or nil if unregistered.
func (r *Registry) Get(id string) *Board {
	return r.boards.Get(id)
}

// Register inserts a newly created board. It is an error to register an
// id that already exists; boards are "never destroyed automatically"
// (spec section 3) so there is no corresponding Unregister.
func (r *Registry) Register(b *Board) error {
	if prev := r.boards.Set(b); prev != nil {
		// Restore the previous occupant: Set already overwrote it.
		r.boards.Set(prev)
		return fmt.Errorf("boardregistry: board %s already registered", b.ID)
	}
	return nil
}

// All returns every registered board, for console/export tooling.
func (r *Registry) All() []*Board {
	return r.boards.GetAll()
}
