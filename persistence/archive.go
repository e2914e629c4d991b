package persistence

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// ExportBoard returns a reader that streams a portable backup of one
// board — its `.board` object plus every `.page` object named in pageIDs —
// as a tar stream compressed with xz. This is the board export/backup feature
// (SPEC_FULL section "Supplemented Features"): no teacher analogue,
// built to give github.com/ulikunitz/xz (a direct teacher dependency
// with no consumer in the retrieved subset) a genuine home, using
// archive/tar for the container format since no third-party tar library
// appears anywhere in the corpus.
func ExportBoard(backend Backend, boardID string, pageIDs []string) (io.Reader, error) {
	pr, pw := io.Pipe()
	go func() {
		err := writeBoardArchive(backend, boardID, pageIDs, pw)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func writeBoardArchive(backend Backend, boardID string, pageIDs []string, w io.Writer) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("persistence: opening xz stream: %w", err)
	}
	tw := tar.NewWriter(xw)

	keys := append([]string{BoardKey(boardID)}, keysFor(pageIDs)...)
	for _, key := range keys {
		data, err := backend.Load(key)
		if err != nil {
			return fmt.Errorf("persistence: loading %s for export: %w", key, err)
		}
		hdr := &tar.Header{Name: key, Size: int64(len(data)), Mode: 0640}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("persistence: writing tar header for %s: %w", key, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("persistence: writing tar body for %s: %w", key, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("persistence: closing tar stream: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("persistence: closing xz stream: %w", err)
	}
	return nil
}

func keysFor(pageIDs []string) []string {
	out := make([]string, len(pageIDs))
	for i, id := range pageIDs {
		out[i] = PageKey(id)
	}
	return out
}

// ImportBoard reads back an archive produced by ExportBoard, restoring
// every contained object into backend. Existing objects with the same
// keys are overwritten.
func ImportBoard(backend Backend, r io.Reader) error {
	xr, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("persistence: opening xz stream: %w", err)
	}
	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("persistence: reading tar header: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("persistence: reading tar body for %s: %w", hdr.Name, err)
		}
		if err := backend.Save(hdr.Name, data); err != nil {
			return fmt.Errorf("persistence: restoring %s: %w", hdr.Name, err)
		}
	}
}
