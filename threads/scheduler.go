package threads

import (
	"sort"
	"sync"

	"vmsim/machine"
)

// Scheduler tracks the live threads and which one is running. Picking the next
// thread is left to the caller.
type Scheduler struct {
	mu      sync.Mutex
	current *Thread
	threads map[int]*Thread
}

// NewScheduler returns a scheduler with no threads.
func NewScheduler() *Scheduler {
	return &Scheduler{threads: make(map[int]*Thread)}
}

// Add registers a thread as runnable.
func (s *Scheduler) Add(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID()] = t
}

// Remove forgets a finished thread.
func (s *Scheduler) Remove(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, t.ID())
	if s.current == t {
		s.current = nil
	}
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Threads returns the live threads ordered by id.
func (s *Scheduler) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Switch makes next the running thread: the outgoing thread saves its user
// registers and address space state, the incoming one restores them.
func (s *Scheduler) Switch(next *Thread, m *machine.Machine) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	if prev != nil {
		prev.SaveUserState(m)
		if sp := prev.Space(); sp != nil {
			sp.SaveState()
		}
	}
	if next != nil {
		next.RestoreUserState(m)
		if sp := next.Space(); sp != nil {
			sp.RestoreState(m)
		}
	}
}
