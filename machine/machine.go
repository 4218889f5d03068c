package machine

import (
	"fmt"
	"strings"
)

// register numbers, MIPS layout
const (
	StackReg     = 29 // user stack pointer
	RetAddrReg   = 31 // holds return address for procedure calls
	HiReg        = 32 // double register to hold multiply result
	LoReg        = 33
	PCReg        = 34 // current program counter
	NextPCReg    = 35 // next program counter (for branch delay)
	PrevPCReg    = 36 // previous program counter (for debugging)
	LoadReg      = 37 // the register target of a delayed load
	LoadValueReg = 38 // the value to be loaded by a delayed load
	BadVAddrReg  = 39 // the failing virtual address on an exception

	// NumTotalRegs : size of the register file
	NumTotalRegs = 40
)

// TranslationEntry is one page table entry. The same layout serves for the
// per-process page tables and for what the machine walks on every access.
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int  // meaningful only if Valid
	Valid        bool // page is mapped to PhysicalPage
	ReadOnly     bool
	Use          bool // set by the hardware on every reference
	Dirty        bool // set by the hardware on every write
}

// Machine is the simulated CPU state the kernel can see: registers, physical
// memory and the currently installed page table.
type Machine struct {
	Registers [NumTotalRegs]int

	// MainMemory is the physical memory arena. Frames are PageSize long and
	// are only handed out through Frame.
	MainMemory []byte
	PageSize   int

	// active translation
	PageTable     []TranslationEntry
	PageTableSize int
}

// New returns a machine with numFrames physical frames of pageSize bytes.
func New(numFrames, pageSize int) *Machine {
	if numFrames <= 0 || pageSize <= 0 {
		panic(fmt.Sprintf("machine: invalid geometry %d frames of %d bytes", numFrames, pageSize))
	}
	return &Machine{
		MainMemory: make([]byte, numFrames*pageSize),
		PageSize:   pageSize,
	}
}

// NumFrames returns the number of physical frames.
func (m *Machine) NumFrames() int {
	return len(m.MainMemory) / m.PageSize
}

// Frame returns the region of physical memory backing frame n.
func (m *Machine) Frame(n int) []byte {
	if n < 0 || n >= m.NumFrames() {
		panic(fmt.Sprintf("machine: frame %d out of range [0, %d)", n, m.NumFrames()))
	}
	off := n * m.PageSize
	return m.MainMemory[off : off+m.PageSize : off+m.PageSize]
}

// ReadRegister returns the content of a register.
func (m *Machine) ReadRegister(num int) int {
	if num < 0 || num >= NumTotalRegs {
		panic(fmt.Sprintf("machine: register %d out of range", num))
	}
	return m.Registers[num]
}

// WriteRegister stores a value into a register.
func (m *Machine) WriteRegister(num, value int) {
	if num < 0 || num >= NumTotalRegs {
		panic(fmt.Sprintf("machine: register %d out of range", num))
	}
	m.Registers[num] = value
}

// InstallPageTable makes pageTable the active translation.
func (m *Machine) InstallPageTable(pageTable []TranslationEntry, size int) {
	m.PageTable = pageTable
	m.PageTableSize = size
}

// DumpRegisters returns the interesting registers in a single line
func (m *Machine) DumpRegisters() string {
	var b strings.Builder
	for _, r := range []struct {
		name string
		num  int
	}{
		{"PC", PCReg}, {"NextPC", NextPCReg}, {"SP", StackReg}, {"BadVAddr", BadVAddrReg},
	} {
		fmt.Fprintf(&b, " |%s: %d | ", r.name, m.Registers[r.num])
	}
	return b.String()
}
