// Package swap keeps the per-process backing store. Every process gets a file
// named after its pid holding its whole address space: the program image at
// load time, evicted pages afterwards.
package swap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"vmsim/filesys"
	"vmsim/noff"
)

// DefaultMaxImage bounds the scratch buffer used to build a swap file.
const DefaultMaxImage = 1 << 20

// Error is returned for every failure of the underlying file system.
type Error struct {
	Op  string
	PID int
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("swap %s %s: %v", e.Op, Name(e.PID), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Name returns the backing store file name of a process.
func Name(pid int) string {
	return fmt.Sprintf("%d.swap", pid)
}

// Store creates, reads, writes and removes backing store files.
type Store struct {
	fs        filesys.FileSystem
	pageSize  int
	stackSize int
	maxImage  int
	log       *slog.Logger
}

// New returns a store on fs. maxImage <= 0 selects DefaultMaxImage.
func New(fs filesys.FileSystem, pageSize, stackSize, maxImage int, log *slog.Logger) *Store {
	if maxImage <= 0 {
		maxImage = DefaultMaxImage
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		fs:        fs,
		pageSize:  pageSize,
		stackSize: stackSize,
		maxImage:  maxImage,
		log:       log,
	}
}

// PageSize returns the size of a page in the backing store.
func (s *Store) PageSize() int { return s.pageSize }

// Materialize builds the backing store of pid from the executable: code and
// initialized data at their virtual addresses, everything else zero.
func (s *Store) Materialize(exe filesys.File, pid int) error {
	h, err := noff.ReadHeader(exe)
	if err != nil {
		return err
	}
	g, err := noff.Layout(h, s.stackSize, s.pageSize)
	if err != nil {
		return err
	}
	if g.Size > s.maxImage {
		return &noff.FormatError{
			Magic:  h.Magic,
			Reason: fmt.Sprintf("address space of %d bytes exceeds limit of %d", g.Size, s.maxImage),
		}
	}

	image := make([]byte, g.Size)
	for _, seg := range []struct {
		name string
		seg  noff.Segment
	}{
		{"code", h.Code},
		{"initData", h.InitData},
	} {
		if seg.seg.Size == 0 {
			continue
		}
		start, end := int(seg.seg.VirtualAddr), int(seg.seg.VirtualAddr)+int(seg.seg.Size)
		if end > len(image) {
			return &noff.FormatError{
				Magic:  h.Magic,
				Reason: fmt.Sprintf("%s segment [%d, %d) outside address space of %d bytes", seg.name, start, end, len(image)),
			}
		}
		if _, err := exe.ReadAt(image[start:end], int64(seg.seg.InFileAddr)); err != nil {
			return &Error{Op: "read " + seg.name, PID: pid, Err: err}
		}
		s.log.Debug("segment copied",
			"pid", pid, "segment", seg.name, "vaddr", start, "size", seg.seg.Size)
	}

	name := Name(pid)
	if err := s.fs.Create(name, int64(g.Size)); err != nil {
		return &Error{Op: "create", PID: pid, Err: err}
	}
	f, err := s.fs.Open(name)
	if err != nil {
		return &Error{Op: "open", PID: pid, Err: err}
	}
	defer f.Close()

	if n, err := f.Write(image); err != nil {
		return &Error{Op: "write", PID: pid, Err: err}
	} else if n != len(image) {
		return &Error{Op: "write", PID: pid, Err: errors.Errorf("short write: %d of %d bytes", n, len(image))}
	}

	s.log.Info("backing store created", "pid", pid, "file", name, "size", g.Size, "pages", g.NumPages)
	return nil
}

// Destroy removes the backing store of pid. A missing file is fine.
func (s *Store) Destroy(pid int) {
	if err := s.fs.Remove(Name(pid)); err != nil {
		s.log.Debug("backing store not removed", "pid", pid, "error", err)
		return
	}
	s.log.Info("backing store removed", "pid", pid)
}

// ReadPage fills dst with page of pid's backing store.
func (s *Store) ReadPage(pid, page int, dst []byte) error {
	return s.transfer("read", pid, page, dst)
}

// WritePage stores src as page of pid's backing store.
func (s *Store) WritePage(pid, page int, src []byte) error {
	return s.transfer("write", pid, page, src)
}

func (s *Store) transfer(op string, pid, page int, buf []byte) error {
	if len(buf) != s.pageSize {
		return &Error{Op: op, PID: pid, Err: errors.Errorf("buffer of %d bytes, page size is %d", len(buf), s.pageSize)}
	}
	f, err := s.fs.Open(Name(pid))
	if err != nil {
		return &Error{Op: op, PID: pid, Err: err}
	}
	defer f.Close()

	off := int64(page) * int64(s.pageSize)
	var n int
	if op == "read" {
		n, err = f.ReadAt(buf, off)
	} else {
		n, err = f.WriteAt(buf, off)
	}
	// a full page read that ends exactly at the end of file may still report EOF
	if op == "read" && n == len(buf) && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return &Error{Op: op, PID: pid, Err: errors.Wrapf(err, "page %d", page)}
	}
	if n != len(buf) {
		return &Error{Op: op, PID: pid, Err: errors.Errorf("page %d: short %s of %d bytes", page, op, n)}
	}
	return nil
}
