package persistence

import (
	"fmt"
	"log"

	"github.com/kubux/whiteboard/action"
	"github.com/kubux/whiteboard/hashing"
	"github.com/kubux/whiteboard/pageengine"
)

// persistedPage is the on-disk schema for a <uuid>.page file (spec
// section 6.3): history, present cursor and the hash chain. The
// materialized visible set is deliberately not persisted — Restore
// recompiles it from history[0:present], so a stale or corrupted visible
// blob can never desync what's actually on disk.
type persistedPage struct {
	ID      string
	History []action.Action
	Present int
	Hashes  []hashing.Digest
}

// encodePersistedPage renders a persistedPage as the canonical
// serialization (spec section 6.3: "the canonical serialization format
// (set and map tagging)" is one of only two in-file compatibility
// points), not encoding/json — the same Value/Encode machinery used for
// the hash chain itself.
func encodePersistedPage(p persistedPage) []byte {
	history := make([]hashing.Value, len(p.History))
	for i, a := range p.History {
		history[i] = a.Value()
	}
	hashes := make([]hashing.Value, len(p.Hashes))
	for i, h := range p.Hashes {
		hashes[i] = hashing.Bin(h[:])
	}
	return hashing.Encode(hashing.Object(
		hashing.F("id", hashing.Str(p.ID)),
		hashing.F("history", hashing.Seq(history...)),
		hashing.F("present", hashing.Int(int64(p.Present))),
		hashing.F("hashes", hashing.Seq(hashes...)),
	))
}

func decodePersistedPage(data []byte) (persistedPage, error) {
	v, err := hashing.Decode(data)
	if err != nil {
		return persistedPage{}, err
	}
	if v.Kind != hashing.KindObject {
		return persistedPage{}, fmt.Errorf("persistence: page root is not an object")
	}
	var p persistedPage
	for _, f := range v.Obj {
		switch f.Key {
		case "id":
			p.ID = f.Val.S
		case "history":
			p.History = make([]action.Action, len(f.Val.Seq))
			for i, item := range f.Val.Seq {
				a, err := action.Decode(item)
				if err != nil {
					return persistedPage{}, fmt.Errorf("persistence: history[%d]: %w", i, err)
				}
				p.History[i] = a
			}
		case "present":
			p.Present = int(f.Val.I)
		case "hashes":
			p.Hashes = make([]hashing.Digest, len(f.Val.Seq))
			for i, item := range f.Val.Seq {
				if len(item.Bytes) != len(hashing.Digest{}) {
					return persistedPage{}, fmt.Errorf("persistence: hashes[%d]: wrong length %d", i, len(item.Bytes))
				}
				copy(p.Hashes[i][:], item.Bytes)
			}
		}
	}
	return p, nil
}

// PageEntry adapts a *pageengine.Page to cache.Entry, writing back to a
// Backend on flush. It holds no lock of its own: the cache.Manager only
// ever hands out one pinned reference at a time per key, and callers are
// expected to serialize mutation through the board's own task ordering
// (spec section 5).
type PageEntry struct {
	Page    *pageengine.Page
	Backend Backend
}

// NewPageEntry loads a page from backend if present, or creates a fresh
// one (spec section 4.5's "load failure returns a fresh empty page").
func NewPageEntry(backend Backend, pageID string) (*PageEntry, error) {
	data, err := backend.Load(PageKey(pageID))
	if err == ErrNotFound {
		return &PageEntry{Page: pageengine.New(pageID), Backend: backend}, nil
	}
	if err != nil {
		log.Printf("persistence: loading page %s failed, starting it empty: %v", pageID, err)
		return &PageEntry{Page: pageengine.New(pageID), Backend: backend}, nil
	}
	persisted, err := decodePersistedPage(data)
	if err != nil {
		log.Printf("persistence: decoding page %s failed, starting it empty: %v", pageID, err)
		return &PageEntry{Page: pageengine.New(pageID), Backend: backend}, nil
	}
	page, err := pageengine.Restore(persisted.ID, persisted.History, persisted.Present, persisted.Hashes)
	if err != nil {
		log.Printf("persistence: restoring page %s failed, starting it empty: %v", pageID, err)
		return &PageEntry{Page: pageengine.New(pageID), Backend: backend}, nil
	}
	return &PageEntry{Page: page, Backend: backend}, nil
}

// Key implements cache.Entry.
func (e *PageEntry) Key() string { return e.Page.ID }

// Size implements cache.Entry with a rough byte estimate dominated by the
// action history.
func (e *PageEntry) Size() int64 {
	return int64(128 + len(e.Page.History)*96)
}

// Flush implements cache.Entry: serialize and save. Save failures are
// logged here and returned; cache.Manager discards the returned error, so
// they are never surfaced to the mutating operation (spec section 4.5).
func (e *PageEntry) Flush() error {
	data := encodePersistedPage(persistedPage{
		ID:      e.Page.ID,
		History: e.Page.HistorySnapshot(),
		Present: e.Page.Present,
		Hashes:  e.Page.Hashes,
	})
	if err := e.Backend.Save(PageKey(e.Page.ID), data); err != nil {
		log.Printf("persistence: saving page %s: %v", e.Page.ID, err)
		return err
	}
	return nil
}
