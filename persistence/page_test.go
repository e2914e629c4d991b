package persistence

import (
	"encoding/json"
	"testing"

	"github.com/kubux/whiteboard/action"
	"github.com/kubux/whiteboard/hashing"
)

func TestPersistedPageRoundTripsThroughCanonicalEncoding(t *testing.T) {
	want := persistedPage{
		ID: "p1",
		History: []action.Action{
			{Type: action.TypeDraw, UUID: "u1", Element: json.RawMessage(`{"x":1}`)},
			{Type: action.TypeErase, UUID: "u2", Target: "u1"},
		},
		Present: 2,
		Hashes: []hashing.Digest{
			hashing.Of(hashing.Str("p1")),
			hashing.Next(hashing.Of(hashing.Str("p1")), action.Action{Type: action.TypeDraw, UUID: "u1", Element: json.RawMessage(`{"x":1}`)}.Value()),
		},
	}

	got, err := decodePersistedPage(encodePersistedPage(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != want.ID || got.Present != want.Present {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.History) != len(want.History) || got.History[1].Target != "u1" {
		t.Fatalf("history mismatch: %+v", got.History)
	}
	if len(got.Hashes) != len(want.Hashes) || !got.Hashes[0].Equal(want.Hashes[0]) || !got.Hashes[1].Equal(want.Hashes[1]) {
		t.Fatalf("hashes mismatch: %+v", got.Hashes)
	}
}

func TestPersistedBoardRoundTripsThroughCanonicalEncoding(t *testing.T) {
	want := persistedBoard{Passwd: "digest", PageOrder: []string{"p1", "p2", "p3"}}

	got, err := decodePersistedBoard(encodePersistedBoard(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Passwd != want.Passwd {
		t.Fatalf("passwd mismatch: %q", got.Passwd)
	}
	if len(got.PageOrder) != 3 || got.PageOrder[1] != "p2" {
		t.Fatalf("pageOrder mismatch: %v", got.PageOrder)
	}
}

func TestDeletionMapRoundTripsThroughCanonicalEncoding(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}

	m := DeletionMap{"old1": "new1", "old2": "new2"}
	if err := m.Save(backend); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadDeletionMap(backend)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 || loaded["old1"] != "new1" || loaded["old2"] != "new2" {
		t.Fatalf("loaded map mismatch: %v", loaded)
	}
}
