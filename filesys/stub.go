package filesys

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Stub maps the file system onto a directory of the host.
type Stub struct {
	root string
}

// NewStub returns a file system rooted at dir. The directory is created if needed.
func NewStub(dir string) (*Stub, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "can't create file system root %s", dir)
	}
	return &Stub{root: dir}, nil
}

func (s *Stub) path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

// Create makes a zero filled file of the given size.
func (s *Stub) Create(name string, size int64) error {
	f, err := os.OpenFile(s.path(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// Open opens an existing file for reading and writing.
func (s *Stub) Open(name string) (File, error) {
	f, err := os.OpenFile(s.path(name), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotExist, name)
		}
		return nil, err
	}
	return &stubFile{f}, nil
}

// Remove deletes a file.
func (s *Stub) Remove(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return errors.Wrap(ErrNotExist, name)
	}
	return err
}

type stubFile struct {
	*os.File
}

func (f *stubFile) Length() int64 {
	fi, err := f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}
