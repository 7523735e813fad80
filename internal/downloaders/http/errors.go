package archttp

import (
	"errors"
	"fmt"
)

var (
	ErrSizeUnknown   = errors.New("server did not report a content length")
	ErrEmptyResource = errors.New("server reported a zero-length resource")
	ErrUnauthorized  = errors.New("server rejected the link (401)")
)

// ChunkError is the terminal outcome of a chunk whose attempts were all used up.
type ChunkError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// FilesystemError is fatal for the task that hit it.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
