package persistence

import (
	"fmt"
	"sort"

	"github.com/kubux/whiteboard/boardregistry"
	"github.com/kubux/whiteboard/hashing"
)

// persistedBoard is the on-disk schema for a <uuid>.board file (spec
// section 6.3): `{passwd, pageOrder}`. The deletion redirect graph is not
// part of this file; it lives in the site-wide to_be_removed.json (see
// DeletionMap).
type persistedBoard struct {
	Passwd    string
	PageOrder []string
}

// encodePersistedBoard renders a persistedBoard as the canonical
// serialization (spec section 6.3), not encoding/json.
func encodePersistedBoard(p persistedBoard) []byte {
	order := make([]hashing.Value, len(p.PageOrder))
	for i, id := range p.PageOrder {
		order[i] = hashing.Str(id)
	}
	return hashing.Encode(hashing.Object(
		hashing.F("passwd", hashing.Str(p.Passwd)),
		hashing.F("pageOrder", hashing.Seq(order...)),
	))
}

func decodePersistedBoard(data []byte) (persistedBoard, error) {
	v, err := hashing.Decode(data)
	if err != nil {
		return persistedBoard{}, err
	}
	if v.Kind != hashing.KindObject {
		return persistedBoard{}, fmt.Errorf("persistence: board root is not an object")
	}
	var p persistedBoard
	for _, f := range v.Obj {
		switch f.Key {
		case "passwd":
			p.Passwd = f.Val.S
		case "pageOrder":
			p.PageOrder = make([]string, len(f.Val.Seq))
			for i, item := range f.Val.Seq {
				p.PageOrder[i] = item.S
			}
		}
	}
	return p, nil
}

// BoardEntry adapts a *boardregistry.Board to cache.Entry.
type BoardEntry struct {
	Board   *boardregistry.Board
	Backend Backend
}

// NewBoardEntry loads a board from backend, applying any redirects owned
// by it from the supplied site-wide deletion map. It returns ErrNotFound
// unchanged so the caller (registry lookup miss vs genuine load failure)
// can tell the two apart.
func NewBoardEntry(backend Backend, boardID string, deletionMap map[string]string) (*BoardEntry, error) {
	data, err := backend.Load(BoardKey(boardID))
	if err != nil {
		return nil, err
	}
	persisted, err := decodePersistedBoard(data)
	if err != nil {
		return nil, fmt.Errorf("persistence: decoding board %s: %w", boardID, err)
	}
	// A deleted page id is no longer in pageOrder, so an entry belongs to
	// this board when its redirect chain ends on one of this board's live
	// pages.
	ownRedirect := make(map[string]string)
	for k, v := range deletionMap {
		current := k
		for step := 0; step <= len(deletionMap); step++ {
			next, ok := deletionMap[current]
			if !ok {
				break
			}
			current = next
			if contains(persisted.PageOrder, current) {
				ownRedirect[k] = v
				break
			}
		}
	}
	board := boardregistry.Restore(boardID, persisted.Passwd, persisted.PageOrder, ownRedirect)
	return &BoardEntry{Board: board, Backend: backend}, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Key implements cache.Entry.
func (e *BoardEntry) Key() string { return e.Board.ID }

// Size implements cache.Entry with a rough byte estimate.
func (e *BoardEntry) Size() int64 {
	return int64(64 + len(e.Board.PageOrder())*40)
}

// Flush implements cache.Entry.
func (e *BoardEntry) Flush() error {
	data := encodePersistedBoard(persistedBoard{
		Passwd:    e.Board.PasswordDigest,
		PageOrder: e.Board.PageOrder(),
	})
	return e.Backend.Save(BoardKey(e.Board.ID), data)
}

// DeletionMap is the site-wide to_be_removed.json: every board's
// redirect entries merged into one id -> id map, keyed by the deleted
// page id (spec section 6.3). Page ids are UUIDs and therefore globally
// unique, so a single flat map is sufficient across boards. Persisted as
// a canonical OrderedMap, keys sorted for a byte-stable file.
type DeletionMap map[string]string

// LoadDeletionMap reads to_be_removed.json, tolerating a missing file
// (fresh installation has no deletions yet).
func LoadDeletionMap(backend Backend) (DeletionMap, error) {
	data, err := backend.Load(DeletionMapKey)
	if err == ErrNotFound {
		return DeletionMap{}, nil
	}
	if err != nil {
		return DeletionMap{}, nil
	}
	v, err := hashing.Decode(data)
	if err != nil || v.Kind != hashing.KindOrderedMap {
		return DeletionMap{}, nil
	}
	m := make(DeletionMap, len(v.Map))
	for _, pair := range v.Map {
		m[pair.Key.S] = pair.Val.S
	}
	return m, nil
}

// Save persists the deletion map in canonical form.
func (m DeletionMap) Save(backend Backend) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]hashing.Pair, len(keys))
	for i, k := range keys {
		pairs[i] = hashing.P(hashing.Str(k), hashing.Str(m[k]))
	}
	return backend.Save(DeletionMapKey, hashing.Encode(hashing.OrderedMap(pairs...)))
}

// Merge folds a board's own redirect entries into the map.
func (m DeletionMap) Merge(board *boardregistry.Board) {
	for k, v := range board.RedirectSnapshot() {
		m[k] = v
	}
}
