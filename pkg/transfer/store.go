package transfer

import (
	"context"
	"io"
)

// Entry describes a single file or directory in a store.
type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir,omitempty"`
}

// Store is the remote hierarchical store the engine transfers against.
// Paths are slash-separated and relative to the store root. Implementations
// must return errors wrapping ErrNotExist for missing paths so callers can
// test with errors.Is.
//
// Writers returned by NewWriter must commit atomically on Close: a reader
// must observe either no object or the complete object, never a partial one.
type Store interface {
	// NewReader opens the byte range [offset, offset+length) of the object
	// at path. A length of 0 yields an empty reader.
	NewReader(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)

	// NewWriter opens a writer for the object at path, replacing any
	// existing object when the writer is closed.
	NewWriter(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists reports whether a file or directory exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns metadata for the file or directory at path.
	Stat(ctx context.Context, path string) (Entry, error)

	// Mkdir creates the directory at path, including missing parents.
	Mkdir(ctx context.Context, path string) error

	// List returns the immediate children of the directory at path,
	// sorted by name.
	List(ctx context.Context, path string) ([]Entry, error)

	// Remove deletes the object at path. With recursive set it deletes a
	// directory and everything beneath it.
	Remove(ctx context.Context, path string, recursive bool) error

	// Usage reports byte usage under path. With deep set the map holds one
	// entry per file; otherwise usage is aggregated per immediate child.
	Usage(ctx context.Context, path string, deep bool) (map[string]int64, error)

	// Concat concatenates the objects named in parts, in order, into a new
	// object at dst. The parts are left in place; on failure no object may
	// be observable at dst.
	Concat(ctx context.Context, dst string, parts []string) error
}

// UsageTotal sums a usage report into a grand total.
func UsageTotal(usage map[string]int64) int64 {
	var total int64
	for _, size := range usage {
		total += size
	}
	return total
}
