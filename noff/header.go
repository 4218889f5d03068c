package noff

/*
NOFF object file header.

The header sits at offset 0 of every executable and is made of ten 32 bit words,
stored little endian:

	magic
	code       virtualAddr, inFileAddr, size
	initData   virtualAddr, inFileAddr, size
	uninitData virtualAddr, inFileAddr, size

Files produced on a big endian host carry every word byte swapped. The magic
number tells the two apart.
*/

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

const (
	// Magic identifies a NOFF executable
	Magic uint32 = 0xbadfad

	// HeaderSize : size of the on-disk header in bytes
	HeaderSize = 40
)

// Segment describes one contiguous piece of the program image.
type Segment struct {
	VirtualAddr uint32 // location of the segment in the address space
	InFileAddr  uint32 // location of the segment in the executable
	Size        uint32
}

// Header is the decoded executable header.
type Header struct {
	Magic      uint32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

// FormatError is returned when the executable is not a NOFF file
// (or is one with impossible geometry).
type FormatError struct {
	Magic  uint32
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("noff: bad executable (magic %#x): %s", e.Magic, e.Reason)
	}
	return fmt.Sprintf("noff: bad magic number %#x", e.Magic)
}

// words returns pointers to every header word, in on-disk order.
func (h *Header) words() [10]*uint32 {
	return [10]*uint32{
		&h.Magic,
		&h.Code.VirtualAddr, &h.Code.InFileAddr, &h.Code.Size,
		&h.InitData.VirtualAddr, &h.InitData.InFileAddr, &h.InitData.Size,
		&h.UninitData.VirtualAddr, &h.UninitData.InFileAddr, &h.UninitData.Size,
	}
}

// Swap byte-swaps every word of the header in place.
func (h *Header) Swap() {
	for _, w := range h.words() {
		*w = bits.ReverseBytes32(*w)
	}
}

// Decode fills the header from its 40 byte on-disk form, without any
// endianness correction.
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return &FormatError{Reason: fmt.Sprintf("short header: %d bytes", len(buf))}
	}
	for i, w := range h.words() {
		*w = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return nil
}

// Encode returns the 40 byte on-disk form of the header.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	for i, w := range h.words() {
		binary.LittleEndian.PutUint32(buf[i*4:], *w)
	}
	return buf
}

// Validate checks the segment geometry. Sizes and addresses are 32 bit signed
// quantities on disk, anything with the sign bit set is garbage.
func (h *Header) Validate() error {
	for _, s := range []struct {
		name string
		seg  Segment
	}{
		{"code", h.Code},
		{"initData", h.InitData},
		{"uninitData", h.UninitData},
	} {
		if int32(s.seg.Size) < 0 || int32(s.seg.VirtualAddr) < 0 || int32(s.seg.InFileAddr) < 0 {
			return &FormatError{Magic: h.Magic, Reason: "negative " + s.name + " segment field"}
		}
	}
	return nil
}

// ReadHeader reads the header at offset 0 of the executable. A header written
// with the opposite byte order is swapped in place; anything else that does not
// carry the magic number is a *FormatError.
func ReadHeader(r io.ReaderAt) (Header, error) {
	var h Header
	buf := make([]byte, HeaderSize)
	n, err := r.ReadAt(buf, 0)
	if n < HeaderSize {
		if err == nil || err == io.EOF {
			return h, &FormatError{Reason: fmt.Sprintf("short header: %d bytes", n)}
		}
		return h, err
	}
	if err := h.Decode(buf); err != nil {
		return h, err
	}

	if h.Magic != Magic && bits.ReverseBytes32(h.Magic) == Magic {
		h.Swap()
	}
	if h.Magic != Magic {
		return h, &FormatError{Magic: h.Magic}
	}
	return h, h.Validate()
}

// Geometry is the size of an address space built from a header.
type Geometry struct {
	Size     int // page-rounded size in bytes
	NumPages int
}

// Layout computes how big the address space is: all three segments plus the
// stack, rounded up to whole pages.
func Layout(h Header, stackSize, pageSize int) (Geometry, error) {
	if pageSize <= 0 {
		return Geometry{}, fmt.Errorf("noff: invalid page size %d", pageSize)
	}
	if stackSize < 0 {
		return Geometry{}, fmt.Errorf("noff: invalid stack size %d", stackSize)
	}
	size := int(h.Code.Size) + int(h.InitData.Size) + int(h.UninitData.Size) + stackSize
	numPages := divRoundUp(size, pageSize)
	return Geometry{Size: numPages * pageSize, NumPages: numPages}, nil
}

func divRoundUp(n, s int) int {
	return (n + s - 1) / s
}
