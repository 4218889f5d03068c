// Package filesys defines the file system the virtual memory code talks to.
// Two implementations exist: Stub keeps files in a host directory, Memory keeps
// them in byte slices.
package filesys

import (
	"errors"
	"io"
)

// ErrNotExist is returned by Open and Remove for missing files.
var ErrNotExist = errors.New("filesys: file does not exist")

// File is an open file. Read and Write use and advance the seek position,
// ReadAt and WriteAt do not.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Length returns the number of bytes in the file
	Length() int64
}

// FileSystem creates, opens and removes files by name.
type FileSystem interface {
	// Create makes a new file of the given size, truncating an existing one
	Create(name string, size int64) error
	Open(name string) (File, error)
	Remove(name string) error
}
