// Package addrspace manages user address spaces: the page table of a process,
// its initial register state, and loading its pages on demand.
package addrspace

import (
	"fmt"
	"io"
	"log/slog"

	"vmsim/frames"
	"vmsim/machine"
	"vmsim/noff"
)

// Layout holds the machine parameters an address space is sized with.
type Layout struct {
	PageSize  int
	StackSize int
	// MaxImage bounds the address space size in bytes, 0 means no bound
	MaxImage int
	Log      *slog.Logger
}

// AddressSpace is the virtual memory of one process. Pages start unmapped and
// are brought in by the Pager on first reference.
type AddressSpace struct {
	pid       int
	pageSize  int
	numPages  int
	pageTable []machine.TranslationEntry
	log       *slog.Logger
}

// New reads the executable header and sets up an empty page table big enough
// for code, data, bss and the stack.
func New(exe io.ReaderAt, pid int, l Layout) (*AddressSpace, error) {
	h, err := noff.ReadHeader(exe)
	if err != nil {
		return nil, err
	}
	g, err := noff.Layout(h, l.StackSize, l.PageSize)
	if err != nil {
		return nil, err
	}
	if l.MaxImage > 0 && g.Size > l.MaxImage {
		return nil, &noff.FormatError{
			Magic:  h.Magic,
			Reason: fmt.Sprintf("address space of %d bytes exceeds limit of %d", g.Size, l.MaxImage),
		}
	}
	log := l.Log
	if log == nil {
		log = slog.Default()
	}

	pageTable := make([]machine.TranslationEntry, g.NumPages)
	for i := range pageTable {
		pageTable[i] = machine.TranslationEntry{
			VirtualPage:  i,
			PhysicalPage: -1,
		}
	}
	return &AddressSpace{
		pid:       pid,
		pageSize:  l.PageSize,
		numPages:  g.NumPages,
		pageTable: pageTable,
		log:       log,
	}, nil
}

// PID returns the process the address space belongs to.
func (as *AddressSpace) PID() int { return as.pid }

// NumPages returns the size of the address space in pages.
func (as *AddressSpace) NumPages() int { return as.numPages }

// Size returns the size of the address space in bytes.
func (as *AddressSpace) Size() int { return as.numPages * as.pageSize }

// Translation returns a copy of the entry for page.
func (as *AddressSpace) Translation(page int) machine.TranslationEntry {
	return as.pageTable[page]
}

// ValidPages returns the pages currently mapped to a frame.
func (as *AddressSpace) ValidPages() []int {
	var pages []int
	for i := range as.pageTable {
		if as.pageTable[i].Valid {
			pages = append(pages, i)
		}
	}
	return pages
}

// Invalidate unmaps page. Called by the pager when the frame holding page is
// given to someone else.
func (as *AddressSpace) Invalidate(page int) {
	e := &as.pageTable[page]
	e.Valid = false
	e.Use = false
	e.Dirty = false
	e.PhysicalPage = -1
}

// Destroy gives every mapped frame back to the pool and returns how many it
// released. A frame whose slot names another process page is not released. It
// must run before the backing store of the process is removed.
func (as *AddressSpace) Destroy(pool *frames.Pool) int {
	released := 0
	_ = pool.Do(func(t *frames.Table) error {
		for i := range as.pageTable {
			e := &as.pageTable[i]
			if e.Valid {
				if slot := t.Entry(e.PhysicalPage); slot.PID != as.pid || slot.Page != i {
					as.log.Error("frame not owned by destroyed page, left allocated",
						"pid", as.pid, "page", i, "frame", e.PhysicalPage,
						"owner_pid", slot.PID, "owner_page", slot.Page)
				} else {
					t.Release(e.PhysicalPage)
					released++
				}
			}
			e.Valid = false
			e.Dirty = false
			e.PhysicalPage = -1
		}
		return nil
	})
	return released
}

// InitRegisters sets up the register file to start running the program at
// address 0 with the stack at the top of the address space.
func (as *AddressSpace) InitRegisters(m *machine.Machine) {
	for i := 0; i < machine.NumTotalRegs; i++ {
		m.WriteRegister(i, 0)
	}

	// initial program counter -- must be location of "Start"
	m.WriteRegister(machine.PCReg, 0)

	// branch delay: the machine also needs to know the next instruction
	m.WriteRegister(machine.NextPCReg, 4)

	// a bit below the top, to make sure we don't reference off the end
	m.WriteRegister(machine.StackReg, as.numPages*as.pageSize-16)
}

// SaveState has nothing to save: the user registers live in the thread.
func (as *AddressSpace) SaveState() {}

// RestoreState makes this address space the active translation.
func (as *AddressSpace) RestoreState(m *machine.Machine) {
	m.InstallPageTable(as.pageTable, as.numPages)
}

func (as *AddressSpace) String() string {
	return fmt.Sprintf("space(pid=%d pages=%d valid=%d)", as.pid, as.numPages, len(as.ValidPages()))
}
