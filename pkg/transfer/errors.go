package transfer

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrNotFound is returned when a source specification matches no files.
	ErrNotFound = errors.New("transfer: source matched no files")

	// ErrNotExist is returned (wrapped) by Store implementations and path
	// expansion when a path does not exist.
	ErrNotExist = errors.New("transfer: path does not exist")
)

// ChunkError records a chunk whose transfer failed permanently after
// exhausting its retry budget. The job continues with sibling chunks; use
// errors.As on the value returned by Job.Run to inspect failures.
type ChunkError struct {
	File  string // source path of the file the chunk belongs to
	Index int    // chunk index within the file
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transfer: chunk %d of %s: %v", e.Index, e.File, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// MergeError records a failed upload merge step. All temporary parts were
// uploaded but concatenation into the final object failed; the parts are
// preserved so a resumed run retries only the merge.
type MergeError struct {
	Path string // final destination object
	Err  error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("transfer: merge %s: %v", e.Path, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
