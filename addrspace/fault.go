package addrspace

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"vmsim/frames"
	"vmsim/machine"
	"vmsim/swap"
	"vmsim/threads"
)

// ErrAddressOutOfRange is returned for faults outside the address space.
var ErrAddressOutOfRange = errors.New("addrspace: fault address outside the address space")

// Stats counts what the pager did.
type Stats struct {
	Faults     int64
	Evictions  int64
	WriteBacks int64
	Failures   int64
}

// Pager services page faults: it finds a frame (evicting a victim if the pool
// is full), brings the faulting page in from the backing store and maps it.
type Pager struct {
	pool    *frames.Pool
	store   *swap.Store
	machine *machine.Machine
	log     *slog.Logger

	faults, evictions, writeBacks, failures atomic.Int64
}

// NewPager returns a pager moving pages between the machine's memory and store.
func NewPager(pool *frames.Pool, store *swap.Store, m *machine.Machine, log *slog.Logger) *Pager {
	if m.PageSize != store.PageSize() {
		panic("addrspace: machine and backing store disagree on the page size")
	}
	if m.NumFrames() < pool.Capacity() {
		panic("addrspace: frame pool larger than physical memory")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pager{pool: pool, store: store, machine: m, log: log}
}

// Stats returns the pager counters.
func (p *Pager) Stats() Stats {
	return Stats{
		Faults:     p.faults.Load(),
		Evictions:  p.evictions.Load(),
		WriteBacks: p.writeBacks.Load(),
		Failures:   p.failures.Load(),
	}
}

// HandleFault loads the page containing addr into space on behalf of thread t.
// The whole sequence runs with the frame pool locked, faults are serialized.
//
// When the pool is full and the policy gives no victim the returned error
// satisfies errors.Is(err, frames.ErrExhausted) and nothing was changed.
func (p *Pager) HandleFault(space *AddressSpace, t *threads.Thread, addr int) error {
	p.faults.Add(1)
	err := p.pool.Do(func(tb *frames.Table) error {
		return p.loadPage(tb, space, t, addr)
	})
	if err != nil {
		p.failures.Add(1)
		p.log.Warn("page fault failed", "pid", space.PID(), "addr", addr, "error", err)
	}
	return err
}

func (p *Pager) loadPage(tb *frames.Table, space *AddressSpace, t *threads.Thread, addr int) error {
	pageSize := p.machine.PageSize
	if addr < 0 || addr >= space.Size() {
		return errors.Wrapf(ErrAddressOutOfRange, "pid %d addr %d", space.PID(), addr)
	}
	page := addr / pageSize

	entry := &space.pageTable[page]
	if entry.Valid {
		// someone else brought it in while we waited for the lock
		return nil
	}

	frame, ok := tb.AllocateFree()
	if !ok {
		p.log.Debug("no free frame", "pid", space.PID(), "page", page, "pool", tb.String())
		victim, err := tb.SelectVictim()
		if err != nil {
			return errors.Wrapf(err, "pid %d page %d", space.PID(), page)
		}
		if err := p.evict(tb, victim); err != nil {
			return err
		}
		frame = victim
	}

	mem := p.machine.Frame(frame)
	if err := p.store.ReadPage(space.PID(), page, mem); err != nil {
		tb.Release(frame)
		return err
	}

	entry.PhysicalPage = frame
	entry.Use = false
	entry.Dirty = false
	entry.Valid = true

	tb.Tick()
	tb.Touch(frame, space.PID(), t, page, space)

	p.log.Debug("page loaded", "pid", space.PID(), "page", page, "frame", frame)
	return nil
}

// evict writes the victim frame back to its owner's backing store, unmaps it
// from the owner and clears the slot. On error nothing is changed.
func (p *Pager) evict(tb *frames.Table, victim int) error {
	e := tb.Entry(victim)
	if err := p.store.WritePage(e.PID, e.Page, p.machine.Frame(victim)); err != nil {
		return errors.Wrapf(err, "write back of frame %d", victim)
	}
	p.writeBacks.Add(1)

	e.Owner.Invalidate(e.Page)
	tb.Clear(victim)
	p.evictions.Add(1)
	p.log.Info("page evicted", "pid", e.PID, "page", e.Page, "frame", victim, "age", e.Age)
	return nil
}
