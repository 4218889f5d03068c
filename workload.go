package main

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"vmsim/filesys"
	"vmsim/noff"
	"vmsim/system"
)

// installPrograms writes n demo executables into fs and returns their names.
// Every other one carries a byte swapped header.
func installPrograms(fs filesys.FileSystem, n, pageSize int, rnd *rand.Rand) ([]string, error) {
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		code := make([]byte, pageSize*(2+rnd.Intn(4))+rnd.Intn(pageSize))
		for j := range code {
			code[j] = byte(i<<4 | j%16)
		}
		data := make([]byte, rnd.Intn(pageSize*2))
		for j := range data {
			data[j] = byte(0xD0 | i)
		}
		b := noff.Builder{
			Code:      code,
			InitData:  data,
			BSS:       rnd.Intn(pageSize * 2),
			BigEndian: i%2 == 1,
		}

		name := fmt.Sprintf("demo%d", i)
		if err := writeFile(fs, name, b.Bytes()); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func writeFile(fs filesys.FileSystem, name string, img []byte) error {
	if err := fs.Create(name, int64(len(img))); err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	f, err := fs.Open(name)
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	defer f.Close()
	if _, err := f.Write(img); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}

// workload runs the demo processes round robin, each making a number of
// random reads and writes before it exits.
type workload struct {
	sys      *system.System
	rnd      *rand.Rand
	lifetime int

	procs []*system.Process
	done  map[int]int
	next  int
	steps int
}

func newWorkload(sys *system.System, names []string, lifetime int, rnd *rand.Rand) (*workload, error) {
	w := &workload{
		sys:      sys,
		rnd:      rnd,
		lifetime: lifetime,
		done:     make(map[int]int),
	}
	for _, name := range names {
		p, err := sys.Exec(name)
		if err != nil {
			return nil, err
		}
		w.procs = append(w.procs, p)
	}
	return w, nil
}

// Done reports whether every process has finished.
func (w *workload) Done() bool { return len(w.procs) == 0 }

// Step lets the next process make one memory access and describes what
// happened.
func (w *workload) Step() (string, error) {
	if w.Done() {
		return "", errors.New("workload finished")
	}
	w.steps++
	i := w.next % len(w.procs)
	p := w.procs[i]
	w.next = i + 1

	if err := w.sys.Switch(p.PID); err != nil {
		return "", err
	}

	addr := w.rnd.Intn(p.Space.Size()/4) * 4
	var msg string
	var err error
	if w.rnd.Intn(3) == 0 {
		err = w.sys.WriteMem(addr, 4, w.steps)
		msg = fmt.Sprintf("%v write %#06x <- %d", p, addr, w.steps)
	} else {
		var v int
		v, err = w.sys.ReadMem(addr, 4)
		msg = fmt.Sprintf("%v read  %#06x -> %#x", p, addr, v)
	}

	var killed *system.Killed
	switch {
	case errors.As(err, &killed):
		w.remove(i)
		return fmt.Sprintf("%v: %v", p, err), nil
	case err != nil:
		return "", err
	}

	w.done[p.PID]++
	if w.done[p.PID] >= w.lifetime {
		if err := w.sys.Exit(p.PID); err != nil {
			return "", err
		}
		w.remove(i)
		msg += fmt.Sprintf(" (%v exited)", p)
	}
	return msg, nil
}

func (w *workload) remove(i int) {
	w.procs = append(w.procs[:i], w.procs[i+1:]...)
	w.next = i
}
