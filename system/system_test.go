package system

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"vmsim/config"
	"vmsim/filesys"
	"vmsim/frames"
	"vmsim/machine"
	"vmsim/noff"
	"vmsim/swap"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(frameCount int, policy frames.Policy) config.Config {
	cfg := config.Default()
	cfg.PageSize = 128
	cfg.NumPhysPages = frameCount
	cfg.UserStackSize = 1000
	cfg.SwapPolicy = policy
	return cfg
}

// image is an executable of 300 code bytes (byte i holds i%251) and 50 bytes
// of data, 11 pages once the stack is added.
func image() []byte {
	code := make([]byte, 300)
	for i := range code {
		code[i] = byte(i % 251)
	}
	b := noff.Builder{Code: code, InitData: bytes.Repeat([]byte{0xDA}, 50)}
	return b.Bytes()
}

func newSystem(t *testing.T, frameCount int, policy frames.Policy) (*System, *filesys.Memory) {
	t.Helper()
	fs := filesys.NewMemory()
	fs.Attach("prog", image())
	sys, err := New(testConfig(frameCount, policy), fs, quiet)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sys, fs
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(0, frames.Aging)
	if _, err := New(cfg, filesys.NewMemory(), quiet); err == nil {
		t.Errorf("New() accepted a pool without frames")
	}
}

func TestSystem_ExecAccessExit(t *testing.T) {
	sys, fs := newSystem(t, 4, frames.Aging)

	p, err := sys.Exec("prog")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if sys.Current() != p {
		t.Errorf("Current() = %v, want %v", sys.Current(), p)
	}
	if !fs.Exists(swap.Name(p.PID)) {
		t.Errorf("Exec() created no backing store")
	}
	if sp := sys.Machine.ReadRegister(machine.StackReg); sp != 11*128-16 {
		t.Errorf("stack pointer = %d, want %d", sp, 11*128-16)
	}

	tests := []struct {
		name string
		addr int
		size int
		want int
	}{
		{"first code word", 0, 4, 0x03020100},
		{"code on page 1", 200, 1, 200},
		{"data byte", 300, 1, 0xDA},
		{"bss", 352, 4, 0},
		{"stack", 1380, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sys.ReadMem(tt.addr, tt.size)
			if err != nil || got != tt.want {
				t.Errorf("ReadMem(%d, %d) = %#x, %v, want %#x", tt.addr, tt.size, got, err, tt.want)
			}
		})
	}

	if err := sys.WriteMem(1380, 4, 0x1234); err != nil {
		t.Fatalf("WriteMem() error = %v", err)
	}
	if got, _ := sys.ReadMem(1380, 4); got != 0x1234 {
		t.Errorf("ReadMem() after WriteMem() = %#x", got)
	}
	if st := sys.Stats(); st.Faults != 4 {
		t.Errorf("Stats().Faults = %d, want 4 (pages 0, 1, 2, 10)", st.Faults)
	}

	if err := sys.Exit(p.PID); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if fs.Exists(swap.Name(p.PID)) {
		t.Errorf("Exit() left the backing store behind")
	}
	if sys.Pool().Free() != 4 {
		t.Errorf("Free() after Exit() = %d, want 4", sys.Pool().Free())
	}
	if len(sys.Processes()) != 0 || sys.Current() != nil {
		t.Errorf("process still registered after Exit()")
	}
	if _, err := sys.ReadMem(0, 4); !errors.Is(err, ErrNoProcess) {
		t.Errorf("ReadMem() with nothing running error = %v, want ErrNoProcess", err)
	}
}

func TestSystem_EvictionKeepsData(t *testing.T) {
	sys, _ := newSystem(t, 2, frames.Aging)

	a, _ := sys.Exec("prog")
	if err := sys.WriteMem(1280, 4, 0x5eed); err != nil {
		t.Fatalf("WriteMem() error = %v", err)
	}

	b, _ := sys.Exec("prog")
	for _, addr := range []int{0, 128, 256, 384} {
		if _, err := sys.ReadMem(addr, 4); err != nil {
			t.Fatalf("ReadMem(%d) in %v error = %v", addr, b, err)
		}
	}
	if got := a.Space.ValidPages(); len(got) != 0 {
		t.Errorf("pages of %v still resident: %v", a, got)
	}

	if err := sys.Switch(a.PID); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if got, err := sys.ReadMem(1280, 4); err != nil || got != 0x5eed {
		t.Errorf("ReadMem() after eviction = %#x, %v, want 0x5eed", got, err)
	}
	if st := sys.Stats(); st.Evictions == 0 || st.WriteBacks != st.Evictions {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSystem_FailFastKillsOnlyFaultingProcess(t *testing.T) {
	sys, fs := newSystem(t, 2, frames.FailFast)

	a, _ := sys.Exec("prog")
	sys.ReadMem(0, 4)
	sys.ReadMem(128, 4)

	b, _ := sys.Exec("prog")
	_, err := sys.ReadMem(0, 4)

	var killed *Killed
	if !errors.As(err, &killed) || killed.PID != b.PID {
		t.Fatalf("ReadMem() on a full pool error = %v, want *Killed for %v", err, b)
	}
	if !errors.Is(err, frames.ErrExhausted) {
		t.Errorf("error %v does not wrap frames.ErrExhausted", err)
	}
	if fs.Exists(swap.Name(b.PID)) {
		t.Errorf("killed process kept its backing store")
	}

	procs := sys.Processes()
	if len(procs) != 1 || procs[0] != a {
		t.Fatalf("Processes() = %v, want only %v", procs, a)
	}
	if err := sys.Switch(a.PID); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if got, err := sys.ReadMem(128, 1); err != nil || got != 128 {
		t.Errorf("survivor ReadMem() = %d, %v, want 128", got, err)
	}
}

func TestSystem_AddressErrorKills(t *testing.T) {
	sys, _ := newSystem(t, 4, frames.Aging)
	p, _ := sys.Exec("prog")

	_, err := sys.ReadMem(p.Space.Size(), 4)
	var killed *Killed
	if !errors.As(err, &killed) {
		t.Fatalf("ReadMem(past end) error = %v, want *Killed", err)
	}
	var exc *machine.Exception
	if !errors.As(err, &exc) || exc.Type != machine.AddressError {
		t.Errorf("cause = %v, want an address error", killed.Cause)
	}
	if sys.Current() != nil {
		t.Errorf("killed process is still current")
	}
}

func TestSystem_SwitchKeepsRegisters(t *testing.T) {
	sys, _ := newSystem(t, 4, frames.Aging)

	a, _ := sys.Exec("prog")
	sys.Machine.WriteRegister(machine.PCReg, 40)
	b, _ := sys.Exec("prog")
	if pc := sys.Machine.ReadRegister(machine.PCReg); pc != 0 {
		t.Errorf("PC of the new process = %d, want 0", pc)
	}

	sys.Switch(a.PID)
	if pc := sys.Machine.ReadRegister(machine.PCReg); pc != 40 {
		t.Errorf("PC after switching back = %d, want 40", pc)
	}
	if err := sys.Switch(b.PID + 10); !errors.Is(err, ErrNoProcess) {
		t.Errorf("Switch(unknown) error = %v, want ErrNoProcess", err)
	}
}

func TestSystem_ExecErrors(t *testing.T) {
	sys, fs := newSystem(t, 4, frames.Aging)

	if _, err := sys.Exec("missing"); !errors.Is(err, filesys.ErrNotExist) {
		t.Errorf("Exec(missing) error = %v, want ErrNotExist", err)
	}

	fs.Attach("junk", bytes.Repeat([]byte{0xFF}, 64))
	var fe *noff.FormatError
	if _, err := sys.Exec("junk"); !errors.As(err, &fe) {
		t.Errorf("Exec(junk) error = %v, want *noff.FormatError", err)
	}
	if len(sys.Processes()) != 0 {
		t.Errorf("failed Exec() left a process behind")
	}
}

func TestSystem_ExecHugeImage(t *testing.T) {
	sys, fs := newSystem(t, 4, frames.Aging)
	b := noff.Builder{Code: make([]byte, 16), BSS: 0x7fffffff}
	h := b.Header()
	fs.Attach("huge", h.Encode())

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := sys.Exec("huge")
	runtime.ReadMemStats(&after)

	var fe *noff.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Exec(huge) error = %v, want *noff.FormatError", err)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 4<<20 {
		t.Errorf("Exec(huge) allocated %d bytes before rejecting the image", grown)
	}
	if len(sys.Processes()) != 0 {
		t.Errorf("rejected Exec() left a process behind")
	}
	for pid := 1; pid <= 2; pid++ {
		if fs.Exists(swap.Name(pid)) {
			t.Errorf("rejected Exec() created %s", swap.Name(pid))
		}
	}
}

func TestSystem_StubFileSystem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prog"), image(), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	fs, err := filesys.NewStub(dir)
	if err != nil {
		t.Fatalf("NewStub() error = %v", err)
	}
	sys, err := New(testConfig(1, frames.Random), fs, quiet)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p, err := sys.Exec("prog")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, swap.Name(p.PID))); err != nil {
		t.Errorf("backing store missing on disk: %v", err)
	}
	for _, addr := range []int{0, 256, 0, 128} {
		if got, err := sys.ReadMem(addr, 1); err != nil || got != addr%251 {
			t.Errorf("ReadMem(%d) = %d, %v, want %d", addr, got, err, addr%251)
		}
	}

	sys.Exit(p.PID)
	if _, err := os.Stat(filepath.Join(dir, swap.Name(p.PID))); !os.IsNotExist(err) {
		t.Errorf("backing store still on disk after Exit(): %v", err)
	}
}
