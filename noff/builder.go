package noff

// Builder assembles NOFF executables out of raw segment bytes.
// Code is placed at virtual address 0, initialized data right after it and the
// uninitialized data after that. In the file the segments follow the header.
type Builder struct {
	Code      []byte
	InitData  []byte
	BSS       int
	BigEndian bool // write the header byte swapped
}

// Header returns the header the builder would write.
func (b *Builder) Header() Header {
	codeSize := uint32(len(b.Code))
	dataSize := uint32(len(b.InitData))
	return Header{
		Magic: Magic,
		Code: Segment{
			VirtualAddr: 0,
			InFileAddr:  HeaderSize,
			Size:        codeSize,
		},
		InitData: Segment{
			VirtualAddr: codeSize,
			InFileAddr:  HeaderSize + codeSize,
			Size:        dataSize,
		},
		UninitData: Segment{
			VirtualAddr: codeSize + dataSize,
			InFileAddr:  0,
			Size:        uint32(b.BSS),
		},
	}
}

// Bytes returns the complete executable image.
func (b *Builder) Bytes() []byte {
	h := b.Header()
	if b.BigEndian {
		h.Swap()
	}
	out := h.Encode()
	out = append(out, b.Code...)
	out = append(out, b.InitData...)
	return out
}
