package main

import (
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"vmsim/config"
	"vmsim/filesys"
	"vmsim/frames"
	"vmsim/noff"
	"vmsim/swap"
	"vmsim/system"
)

func newTestSystem(t *testing.T, fs filesys.FileSystem, frameCount int, policy frames.Policy) *system.System {
	t.Helper()
	cfg := config.Default()
	cfg.NumPhysPages = frameCount
	cfg.SwapPolicy = policy
	sys, err := system.New(cfg, fs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("system.New() error = %v", err)
	}
	return sys
}

func TestInstallPrograms(t *testing.T) {
	fs := filesys.NewMemory()
	names, err := installPrograms(fs, 3, 128, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("installPrograms() error = %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("installPrograms() = %v, want 3 names", names)
	}
	for _, name := range names {
		f, err := fs.Open(name)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
		h, err := noff.ReadHeader(f)
		f.Close()
		if err != nil {
			t.Errorf("ReadHeader(%s) error = %v", name, err)
			continue
		}
		if h.Code.Size < 2*128 {
			t.Errorf("%s code segment of %d bytes, want at least two pages", name, h.Code.Size)
		}
	}
}

func TestWorkload(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		policy frames.Policy
	}{
		{"aging", 4, frames.Aging},
		{"random", 3, frames.Random},
		{"one frame", 1, frames.Aging},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := filesys.NewMemory()
			sys := newTestSystem(t, fs, tt.frames, tt.policy)
			rnd := rand.New(rand.NewSource(3))
			names, err := installPrograms(fs, 4, 128, rnd)
			if err != nil {
				t.Fatalf("installPrograms() error = %v", err)
			}
			w, err := newWorkload(sys, names, 10, rnd)
			if err != nil {
				t.Fatalf("newWorkload() error = %v", err)
			}

			for i := 0; !w.Done(); i++ {
				if i == 1000 {
					t.Fatalf("workload did not finish")
				}
				msg, err := w.Step()
				if err != nil {
					t.Fatalf("Step() error = %v", err)
				}
				if strings.Contains(msg, "killed") {
					t.Errorf("process killed with an evicting policy: %s", msg)
				}
			}

			if w.steps != 40 {
				t.Errorf("steps = %d, want 40", w.steps)
			}
			if sys.Pool().Free() != tt.frames {
				t.Errorf("Free() = %d after every process exited, want %d", sys.Pool().Free(), tt.frames)
			}
			for pid := 1; pid <= 4; pid++ {
				if fs.Exists(swap.Name(pid)) {
					t.Errorf("%s left behind", swap.Name(pid))
				}
			}
			if _, err := w.Step(); err == nil {
				t.Errorf("Step() after the end returned no error")
			}
		})
	}
}

func TestWorkload_FailFast(t *testing.T) {
	fs := filesys.NewMemory()
	sys := newTestSystem(t, fs, 2, frames.FailFast)
	rnd := rand.New(rand.NewSource(5))
	names, _ := installPrograms(fs, 4, 128, rnd)
	w, err := newWorkload(sys, names, 50, rnd)
	if err != nil {
		t.Fatalf("newWorkload() error = %v", err)
	}

	killed := 0
	for i := 0; !w.Done() && i < 1000; i++ {
		msg, err := w.Step()
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if strings.Contains(msg, "killed") {
			killed++
		}
	}
	if !w.Done() {
		t.Fatalf("workload did not finish")
	}
	if killed == 0 {
		t.Errorf("no process killed with 2 frames and no eviction")
	}
	if sys.Pool().Free() != 2 {
		t.Errorf("Free() = %d, want 2", sys.Pool().Free())
	}
}
