// Package persistence implements the on-disk layout of spec section 6.3:
// one file per board and per page, plus pluggable backends (local files,
// S3-compatible object storage) and a compressed tar export format for
// board backup/restore.
package persistence

import "errors"

// ErrNotFound is returned by Backend.Load when the key does not exist.
var ErrNotFound = errors.New("persistence: not found")

// Backend stores and retrieves opaque blobs keyed by name. Board and page
// objects, and the deletion-map file, are serialized by the caller via
// the hashing package's canonical encoder before reaching Backend.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Remove(key string) error
	// List returns every key with the given prefix, used at startup to
	// enumerate the stored board files.
	List(prefix string) ([]string, error)
}

// BoardKey returns the on-disk key for a board object.
func BoardKey(boardID string) string { return boardID + ".board" }

// PageKey returns the on-disk key for a page object.
func PageKey(pageID string) string { return pageID + ".page" }

const (
	PasswdKey      = "passwd.json"
	DeletionMapKey = "to_be_removed.json"
	BoardExtension = ".board"
	PageExtension  = ".page"
)
