// Package system wires the kernel together: one machine, one frame pool, the
// backing store and the processes running on them.
package system

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"vmsim/addrspace"
	"vmsim/config"
	"vmsim/filesys"
	"vmsim/frames"
	"vmsim/machine"
	"vmsim/swap"
	"vmsim/threads"
)

// ErrNoProcess is returned for unknown pids and when nothing is running.
var ErrNoProcess = errors.New("system: no such process")

// Process is a user program: one thread in one address space.
type Process struct {
	PID    int
	Name   string
	Thread *threads.Thread
	Space  *addrspace.AddressSpace
}

func (p *Process) String() string {
	return fmt.Sprintf("%s[%d]", p.Name, p.PID)
}

// System definition.
type System struct {
	Machine *machine.Machine

	cfg   config.Config
	fs    filesys.FileSystem
	log   *slog.Logger
	pool  *frames.Pool
	store *swap.Store
	pager *addrspace.Pager
	sched *threads.Scheduler

	// mu serializes the CPU: one process touches memory at a time
	mu      sync.Mutex
	procs   map[int]*Process
	lastPID int
}

// New builds the machine and the memory subsystem described by cfg on top of
// the file system fs.
func New(cfg config.Config, fs filesys.FileSystem, log *slog.Logger) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	sys := &System{
		cfg:   cfg,
		fs:    fs,
		log:   log,
		sched: threads.NewScheduler(),
		procs: make(map[int]*Process),
	}
	sys.Machine = machine.New(cfg.NumPhysPages, cfg.PageSize)
	sys.pool = frames.New(cfg.NumPhysPages, cfg.SwapPolicy,
		frames.WithRand(rand.New(rand.NewSource(cfg.RandomSeed))),
		frames.WithLogger(log))
	sys.store = swap.New(fs, cfg.PageSize, cfg.UserStackSize, cfg.MaxImageSize, log)
	sys.pager = addrspace.NewPager(sys.pool, sys.store, sys.Machine, log)

	log.Info("system initialized",
		"frames", cfg.NumPhysPages,
		"page_size", cfg.PageSize,
		"policy", cfg.SwapPolicy.String())
	return sys, nil
}

// Pool returns the frame pool, for inspection.
func (sys *System) Pool() *frames.Pool { return sys.pool }

// Stats returns the pager counters.
func (sys *System) Stats() addrspace.Stats { return sys.pager.Stats() }

// Exec loads the executable name into a new process and makes it the running
// one, registers initialized to start the program.
func (sys *System) Exec(name string) (*Process, error) {
	exe, err := sys.fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "exec %s", name)
	}
	defer exe.Close()

	sys.mu.Lock()
	defer sys.mu.Unlock()

	sys.lastPID++
	pid := sys.lastPID

	space, err := addrspace.New(exe, pid, addrspace.Layout{
		PageSize:  sys.cfg.PageSize,
		StackSize: sys.cfg.UserStackSize,
		MaxImage:  sys.cfg.MaxImageSize,
		Log:       sys.log,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "exec %s", name)
	}
	if err := sys.store.Materialize(exe, pid); err != nil {
		sys.store.Destroy(pid)
		return nil, errors.Wrapf(err, "exec %s", name)
	}

	p := &Process{
		PID:    pid,
		Name:   name,
		Thread: threads.New(name, pid),
		Space:  space,
	}
	p.Thread.SetSpace(space)
	sys.sched.Add(p.Thread)
	sys.procs[pid] = p

	sys.sched.Switch(p.Thread, sys.Machine)
	space.InitRegisters(sys.Machine)
	space.RestoreState(sys.Machine)

	sys.log.Info("process started", "pid", pid, "name", name, "pages", space.NumPages())
	return p, nil
}

// Switch makes pid the running process.
func (sys *System) Switch(pid int) error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	p, ok := sys.procs[pid]
	if !ok {
		return errors.Wrapf(ErrNoProcess, "pid %d", pid)
	}
	sys.sched.Switch(p.Thread, sys.Machine)
	return nil
}

// Current returns the running process, or nil.
func (sys *System) Current() *Process {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.current()
}

func (sys *System) current() *Process {
	t := sys.sched.Current()
	if t == nil {
		return nil
	}
	return sys.procs[t.PID()]
}

// Processes returns the live processes ordered by pid.
func (sys *System) Processes() []*Process {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	out := make([]*Process, 0, len(sys.procs))
	for _, p := range sys.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// ReadMem reads size bytes at addr in the running process, servicing page
// faults on the way. A process the kernel had to kill yields a *Killed error.
func (sys *System) ReadMem(addr, size int) (int, error) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	var value int
	err := sys.access(func() error {
		var err error
		value, err = sys.Machine.ReadMem(addr, size)
		return err
	})
	return value, err
}

// WriteMem writes the low size bytes of value at addr in the running process.
func (sys *System) WriteMem(addr, size, value int) error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	return sys.access(func() error {
		return sys.Machine.WriteMem(addr, size, value)
	})
}

// maxFaults bounds the retries of one access. An aligned access lies in a
// single page, so one fault is all it ever takes.
const maxFaults = 2

func (sys *System) access(op func() error) error {
	if sys.current() == nil {
		return ErrNoProcess
	}
	for i := 0; ; i++ {
		err := op()
		var exc *machine.Exception
		if !errors.As(err, &exc) {
			return err
		}
		if i == maxFaults {
			return errors.Wrap(err, "fault not resolved")
		}
		if err := sys.handleException(exc); err != nil {
			return err
		}
	}
}

// Exit ends process pid: its frames go back to the pool first, then its
// backing store is removed.
func (sys *System) Exit(pid int) error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	p, ok := sys.procs[pid]
	if !ok {
		return errors.Wrapf(ErrNoProcess, "pid %d", pid)
	}
	sys.exit(p)
	return nil
}

func (sys *System) exit(p *Process) {
	if sys.current() == p {
		sys.Machine.InstallPageTable(nil, 0)
	}
	released := p.Space.Destroy(sys.pool)
	sys.store.Destroy(p.PID)
	sys.sched.Remove(p.Thread)
	delete(sys.procs, p.PID)
	sys.log.Info("process exited", "pid", p.PID, "name", p.Name, "frames_released", released)
}
