package filesys

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Memory keeps every file as a byte slice, like a disk cartridge image
// attached to the drive.
type Memory struct {
	mu    sync.Mutex
	files map[string]*image
}

type image struct {
	mu    sync.RWMutex
	rdisk []byte
}

// NewMemory returns an empty in-memory file system.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]*image)}
}

// Create makes a zero filled file of the given size.
func (m *Memory) Create(name string, size int64) error {
	if size < 0 {
		return errors.Errorf("filesys: negative size %d for %s", size, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = &image{rdisk: make([]byte, size)}
	return nil
}

// Attach stores data as the content of name, replacing any existing file.
func (m *Memory) Attach(name string, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = &image{rdisk: buf}
}

// Open returns a handle on an existing file.
func (m *Memory) Open(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.files[name]
	if !ok {
		return nil, errors.Wrap(ErrNotExist, name)
	}
	return &memFile{img: img}, nil
}

// Remove deletes a file. Open handles keep working on the old content.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errors.Wrap(ErrNotExist, name)
	}
	delete(m.files, name)
	return nil
}

// Exists reports whether name is present.
func (m *Memory) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

type memFile struct {
	img *image
	pos int64
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.img.mu.RLock()
	defer f.img.mu.RUnlock()
	if off < 0 {
		return 0, errors.New("filesys: negative offset")
	}
	if off >= int64(len(f.img.rdisk)) {
		return 0, io.EOF
	}
	n := copy(p, f.img.rdisk[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt does not grow the file, files have a fixed size once created.
func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.img.mu.Lock()
	defer f.img.mu.Unlock()
	if off < 0 {
		return 0, errors.New("filesys: negative offset")
	}
	if off >= int64(len(f.img.rdisk)) {
		return 0, io.ErrShortWrite
	}
	n := copy(f.img.rdisk[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (f *memFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *memFile) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *memFile) Length() int64 {
	f.img.mu.RLock()
	defer f.img.mu.RUnlock()
	return int64(len(f.img.rdisk))
}

func (f *memFile) Close() error {
	return nil
}
