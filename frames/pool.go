// Package frames manages the physical frames of the machine. Every frame has a
// slot in an inverted page table recording which process page lives in it and
// how long ago it was last loaded.
package frames

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"vmsim/threads"
)

var (
	// ErrExhausted : no free frame is available
	ErrExhausted = errors.New("frames: no free frame")

	// ErrPolicyRefused : the pool is full and the policy never evicts
	ErrPolicyRefused = errors.Wrap(ErrExhausted, "eviction policy refuses to pick a victim")

	// ErrNoVictim : the pool is full and no frame has an owner that could give it up
	ErrNoVictim = errors.Wrap(ErrExhausted, "no frame eligible for eviction")
)

// Owner is the capability a frame's owning address space hands to the pool.
// Eviction uses it to unmap the page from the owner's page table.
type Owner interface {
	Invalidate(page int)
}

// Entry is one slot of the inverted page table.
type Entry struct {
	Age    int // faults since the frame was last loaded
	PID    int // -1 if unassigned
	Thread *threads.Thread
	Page   int // -1 if unassigned
	Owner  Owner
}

// Owned returns true if a process page lives in the frame.
func (e Entry) Owned() bool {
	return e.PID != -1 && e.Owner != nil
}

func emptyEntry() Entry {
	return Entry{PID: -1, Page: -1}
}

// Table is the frame pool state. It is only reachable with the pool lock held,
// through Pool.Do.
type Table struct {
	entries []Entry
	used    []bool
	policy  Policy
	rand    *rand.Rand
	log     *slog.Logger
}

// Pool is the fixed set of physical frames shared by every process.
type Pool struct {
	mu sync.Mutex
	t  Table
}

// Option configures a Pool.
type Option func(*Table)

// WithRand sets the random source used by the Random policy.
func WithRand(r *rand.Rand) Option {
	return func(t *Table) { t.rand = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.log = l }
}

// New returns a pool of capacity free frames.
func New(capacity int, policy Policy, opts ...Option) *Pool {
	if capacity <= 0 {
		panic(fmt.Sprintf("frames: invalid capacity %d", capacity))
	}
	p := &Pool{t: Table{
		entries: make([]Entry, capacity),
		used:    make([]bool, capacity),
		policy:  policy,
	}}
	for i := range p.t.entries {
		p.t.entries[i] = emptyEntry()
	}
	for _, o := range opts {
		o(&p.t)
	}
	if p.t.rand == nil {
		p.t.rand = rand.New(rand.NewSource(1))
	}
	if p.t.log == nil {
		p.t.log = slog.Default()
	}
	return p
}

// Do runs fn with the pool lock held. Everything fn does on the table is atomic
// with respect to every other pool operation.
func (p *Pool) Do(fn func(t *Table) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(&p.t)
}

// AllocateFree marks the lowest free frame as used and returns it.
func (p *Pool) AllocateFree() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.AllocateFree()
}

// Release frees a frame and clears its slot.
func (p *Pool) Release(frame int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Release(frame)
}

// Tick ages every frame by one.
func (p *Pool) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Tick()
}

// Touch records a new owner for the frame and resets its age.
func (p *Pool) Touch(frame, pid int, thread *threads.Thread, page int, owner Owner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Touch(frame, pid, thread, page, owner)
}

// SelectVictim asks the policy for a frame to evict.
func (p *Pool) SelectVictim() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.SelectVictim()
}

// Entry returns a copy of a slot.
func (p *Pool) Entry(frame int) Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.Entry(frame)
}

// Snapshot returns a copy of every slot.
func (p *Pool) Snapshot() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.Snapshot()
}

// Free returns the number of unused frames.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.Free()
}

// Capacity returns the number of frames.
func (p *Pool) Capacity() int {
	return len(p.t.entries)
}

// Policy returns the eviction policy.
func (p *Pool) Policy() Policy {
	return p.t.policy
}

func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t.String()
}

func (t *Table) check(frame int) {
	if frame < 0 || frame >= len(t.entries) {
		panic(fmt.Sprintf("frames: frame %d out of range [0, %d)", frame, len(t.entries)))
	}
}

// AllocateFree marks the lowest free frame as used and returns it.
// false means every frame is in use.
func (t *Table) AllocateFree() (int, bool) {
	for i, used := range t.used {
		if !used {
			t.used[i] = true
			return i, true
		}
	}
	return -1, false
}

// Release frees a frame and clears its slot.
func (t *Table) Release(frame int) {
	t.check(frame)
	t.used[frame] = false
	t.entries[frame] = emptyEntry()
}

// Clear resets the slot of a frame but keeps the frame allocated, for handing
// an evicted frame straight to a new owner.
func (t *Table) Clear(frame int) {
	t.check(frame)
	t.entries[frame] = emptyEntry()
}

// Tick ages every frame by one.
func (t *Table) Tick() {
	for i := range t.entries {
		t.entries[i].Age++
	}
}

// Touch records a new owner for the frame and resets its age.
func (t *Table) Touch(frame, pid int, thread *threads.Thread, page int, owner Owner) {
	t.check(frame)
	t.used[frame] = true
	t.entries[frame] = Entry{
		Age:    0,
		PID:    pid,
		Thread: thread,
		Page:   page,
		Owner:  owner,
	}
}

// SelectVictim asks the policy for a frame to evict. The frame stays allocated
// and owned, the caller does the eviction.
func (t *Table) SelectVictim() (int, error) {
	if t.policy == FailFast {
		return -1, ErrPolicyRefused
	}

	candidates := make([]int, 0, len(t.entries))
	for i, e := range t.entries {
		if t.used[i] && e.Owned() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1, ErrNoVictim
	}

	victim := -1
	switch t.policy {
	case Aging:
		oldest := -1
		for _, i := range candidates {
			if t.entries[i].Age > oldest {
				oldest = t.entries[i].Age
				victim = i
			}
		}
	case Random:
		victim = candidates[t.rand.Intn(len(candidates))]
	default:
		return -1, errors.Wrapf(ErrPolicyRefused, "unknown policy %v", t.policy)
	}

	t.log.Debug("victim selected",
		"policy", t.policy.String(),
		"frame", victim,
		"pid", t.entries[victim].PID,
		"page", t.entries[victim].Page,
		"age", t.entries[victim].Age)
	return victim, nil
}

// Entry returns a copy of a slot.
func (t *Table) Entry(frame int) Entry {
	t.check(frame)
	return t.entries[frame]
}

// Snapshot returns a copy of every slot.
func (t *Table) Snapshot() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Free returns the number of unused frames.
func (t *Table) Free() int {
	n := 0
	for _, used := range t.used {
		if !used {
			n++
		}
	}
	return n
}

// String dumps the frame bitmap, one character per frame, X for used.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString("frames [")
	for _, used := range t.used {
		if used {
			b.WriteByte('X')
		} else {
			b.WriteByte('.')
		}
	}
	fmt.Fprintf(&b, "] %d/%d used", len(t.used)-t.Free(), len(t.used))
	return b.String()
}
