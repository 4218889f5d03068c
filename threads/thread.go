// Package threads is the little of the scheduler the memory code needs: thread
// identity, the current thread, and the address space a thread runs in.
package threads

import (
	"fmt"
	"sync"
	"sync/atomic"

	"vmsim/machine"
)

// AddressSpace is what a thread runs in. Saving and restoring happens on every
// context switch.
type AddressSpace interface {
	SaveState()
	RestoreState(m *machine.Machine)
}

var lastID atomic.Int64

// Thread is a kernel thread executing in a user address space.
type Thread struct {
	id   int
	pid  int
	name string

	mu    sync.Mutex
	space AddressSpace

	// UserRegisters keeps the user register file while the thread is switched out
	UserRegisters [machine.NumTotalRegs]int
}

// New returns a thread belonging to process pid.
func New(name string, pid int) *Thread {
	return &Thread{
		id:   int(lastID.Add(1)),
		pid:  pid,
		name: name,
	}
}

// ID is unique per thread.
func (t *Thread) ID() int { return t.id }

// PID identifies the process the thread belongs to.
func (t *Thread) PID() int { return t.pid }

func (t *Thread) Name() string { return t.name }

// Space returns the address space of the thread, or nil.
func (t *Thread) Space() AddressSpace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.space
}

// SetSpace attaches an address space to the thread.
func (t *Thread) SetSpace(s AddressSpace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.space = s
}

// SaveUserState copies the machine registers into the thread.
func (t *Thread) SaveUserState(m *machine.Machine) {
	t.UserRegisters = m.Registers
}

// RestoreUserState copies the saved registers back into the machine.
func (t *Thread) RestoreUserState(m *machine.Machine) {
	m.Registers = t.UserRegisters
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(tid=%d pid=%d)", t.name, t.id, t.pid)
}
