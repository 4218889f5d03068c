package machine

import "fmt"

// ExceptionType tells the kernel why the translation failed
type ExceptionType int

// exceptions raised by address translation
const (
	PageFault ExceptionType = iota + 1
	ReadOnly
	AddressError
)

var exceptionNames = map[ExceptionType]string{
	PageFault:    "page fault",
	ReadOnly:     "write to read-only page",
	AddressError: "address error",
}

func (e ExceptionType) String() string {
	if s, ok := exceptionNames[e]; ok {
		return s
	}
	return fmt.Sprintf("exception(%d)", int(e))
}

// Exception is returned by Translate. BadVAddrReg holds the faulting address.
type Exception struct {
	Type  ExceptionType
	VAddr int
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s at virtual address %d", e.Type, e.VAddr)
}

// Translate maps a virtual address to a physical one through the installed page
// table. Use is set on every successful translation, Dirty on writes.
func (m *Machine) Translate(vaddr, size int, writing bool) (int, error) {
	if size <= 0 || size > m.PageSize || vaddr%size != 0 {
		return 0, m.raise(AddressError, vaddr)
	}
	if vaddr < 0 {
		return 0, m.raise(AddressError, vaddr)
	}

	vpn := vaddr / m.PageSize
	offset := vaddr % m.PageSize
	if vpn >= m.PageTableSize || vpn >= len(m.PageTable) {
		return 0, m.raise(AddressError, vaddr)
	}

	entry := &m.PageTable[vpn]
	if !entry.Valid {
		return 0, m.raise(PageFault, vaddr)
	}
	if writing && entry.ReadOnly {
		return 0, m.raise(ReadOnly, vaddr)
	}
	if entry.PhysicalPage < 0 || entry.PhysicalPage >= m.NumFrames() {
		return 0, m.raise(AddressError, vaddr)
	}

	entry.Use = true
	if writing {
		entry.Dirty = true
	}
	return entry.PhysicalPage*m.PageSize + offset, nil
}

func (m *Machine) raise(t ExceptionType, vaddr int) error {
	m.Registers[BadVAddrReg] = vaddr
	return &Exception{Type: t, VAddr: vaddr}
}

// ReadMem reads size bytes (1, 2 or 4) at a virtual address, little endian.
func (m *Machine) ReadMem(vaddr, size int) (int, error) {
	if size != 1 && size != 2 && size != 4 {
		return 0, m.raise(AddressError, vaddr)
	}
	phys, err := m.Translate(vaddr, size, false)
	if err != nil {
		return 0, err
	}
	value := 0
	for i := size - 1; i >= 0; i-- {
		value = value<<8 | int(m.MainMemory[phys+i])
	}
	return value, nil
}

// WriteMem writes the low size bytes of value at a virtual address.
func (m *Machine) WriteMem(vaddr, size, value int) error {
	if size != 1 && size != 2 && size != 4 {
		return m.raise(AddressError, vaddr)
	}
	phys, err := m.Translate(vaddr, size, true)
	if err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		m.MainMemory[phys+i] = byte(value >> (8 * i))
	}
	return nil
}
