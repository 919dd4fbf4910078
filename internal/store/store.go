// Package store implements the artifact store: a disk-backed cache
// mapping artifact paths to local files, with atomic publish via
// temp-file-then-rename and plain stat-based lookup.
package store

import (
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Find for a path with no cached artifact.
// Find never wraps other errors in it; a non-existent path and an
// unreadable one are both reported this way.
var ErrNotFound = errors.New("artifact not found in store")

// StorageError wraps a filesystem failure encountered while publishing.
// The race coordinator surfaces this as receiver.failed(500, ...)
// rather than counting it as an upstream failure: the path itself may be
// perfectly fetchable, the problem is local.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// Entry describes one cached artifact: its canonical path, the absolute
// local file backing it, and file metadata.
type Entry struct {
	Path      string
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
}

// Result pairs an Entry with a seekable, closeable reader over its body.
// Callers must Close the reader when done.
type Result struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// Store is the contract consumed by the Request Bridge and the race
// coordinator.
type Store interface {
	// Find returns the cached entry for path, or ErrNotFound. It performs
	// at most a stat plus an open — no bulk I/O.
	Find(path string) (*Result, error)

	// Publish atomically moves the file at tempFilePath into the store at
	// path, setting its mtime to lastModified (or now, if zero). The
	// source file may live on a different filesystem (e.g. the OS temp
	// directory) — Publish falls back to copy+remove when a same-device
	// rename isn't possible. tempFilePath is consumed: on success it no
	// longer exists at its original location; on failure it is removed.
	Publish(path string, tempFilePath string, lastModified time.Time) (*Entry, error)

	// PublishBytes is the in-memory-body variant of Publish, used by
	// callers that already hold the full artifact in memory instead of a
	// temp file.
	PublishBytes(path string, data []byte, lastModified time.Time) (*Entry, error)

	// Remove deletes the cached file for path, if any. A path with no
	// cached file is not an error.
	Remove(path string) error
}
