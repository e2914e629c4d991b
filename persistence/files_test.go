package persistence

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

func TestFileBackendSaveLoadRemove(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}

	key := BoardKey("b1")
	if err := b.Save(key, []byte(`{"passwd":"x"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := b.Load(key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"passwd":"x"}` {
		t.Fatalf("load returned %q", data)
	}

	if err := b.Remove(key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := b.Load(key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestFileBackendLoadMissingIsErrNotFound(t *testing.T) {
	b, _ := NewFileBackend(t.TempDir())
	if _, err := b.Load("nope.board"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileBackendSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	b.Save(PageKey("p1"), []byte("data"))

	if _, err := b.Load(PageKey("p1") + ".tmp"); err == nil {
		t.Fatalf("temp file should not be independently loadable")
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("expected no leftover .tmp files, found %v", matches)
	}
}

func TestFileBackendListByPrefix(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	b.Save(BoardKey("b1"), []byte("1"))
	b.Save(PageKey("p1"), []byte("2"))

	keys, err := b.List("b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b1.board" {
		t.Fatalf("list(b1) = %v, want [b1.board]", keys)
	}
}

func TestCompressingBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inner, _ := NewFileBackend(dir)
	cb := &CompressingBackend{Inner: inner}

	payload := bytes.Repeat([]byte("whiteboard action payload "), 200)
	if err := cb.Save("p1.page", payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cb.Load("p1.page")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch")
	}

	raw, err := inner.Load("p1.page")
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if len(raw) >= len(payload) {
		t.Fatalf("expected compressed payload to be smaller on disk: raw=%d original=%d", len(raw), len(payload))
	}
}

func TestExportImportBoardRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	b.Save(BoardKey("b1"), []byte(`{"passwd":"d","pageOrder":["p1"]}`))
	b.Save(PageKey("p1"), []byte(`{"history":[],"present":0}`))

	r, err := ExportBoard(b, "b1", []string{"p1"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	archived, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	restoreDir := t.TempDir()
	restoreBackend, _ := NewFileBackend(restoreDir)
	if err := ImportBoard(restoreBackend, bytes.NewReader(archived)); err != nil {
		t.Fatalf("import: %v", err)
	}

	board, err := restoreBackend.Load(BoardKey("b1"))
	if err != nil {
		t.Fatalf("load restored board: %v", err)
	}
	if string(board) != `{"passwd":"d","pageOrder":["p1"]}` {
		t.Fatalf("restored board mismatch: %s", board)
	}
	page, err := restoreBackend.Load(PageKey("p1"))
	if err != nil {
		t.Fatalf("load restored page: %v", err)
	}
	if string(page) != `{"history":[],"present":0}` {
		t.Fatalf("restored page mismatch: %s", page)
	}
}
