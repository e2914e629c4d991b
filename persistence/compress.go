package persistence

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// CompressingBackend wraps another Backend, transparently lz4-compressing
// every Save and decompressing every Load. Board and page objects are
// small JSON/canonical blobs written and read far more often than board
// export happens, so a fast block compressor is the right tool here; the
// slower, higher-ratio xz format is reserved for the export archive
// (persistence/archive.go), which trades speed for a portable single
// file. Grounded on the teacher's declared interest in column-storage
// compression (storage/storage_compress_test.go), generalized to the
// whiteboard's per-entity files.
type CompressingBackend struct {
	Inner Backend
}

func (c *CompressingBackend) Load(key string) ([]byte, error) {
	raw, err := c.Inner.Load(key)
	if err != nil {
		return nil, err
	}
	r := lz4.NewReader(bytes.NewReader(raw))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: decompressing %s: %w", key, err)
	}
	return out, nil
}

func (c *CompressingBackend) Save(key string, data []byte) error {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("persistence: compressing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("persistence: closing lz4 stream for %s: %w", key, err)
	}
	return c.Inner.Save(key, buf.Bytes())
}

func (c *CompressingBackend) Remove(key string) error { return c.Inner.Remove(key) }

func (c *CompressingBackend) List(prefix string) ([]string, error) { return c.Inner.List(prefix) }
