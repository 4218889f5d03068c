package console

import (
	"errors"
	"strings"
	"sync"
)

// History keeps the last status lines, oldest first. Once full, adding a line
// drops the oldest one.
type History struct {
	mu      sync.Mutex
	items   []string
	maxSize int
}

// NewHistory returns an empty history of at most maxSize lines.
func NewHistory(maxSize int) *History {
	if maxSize < 1 {
		maxSize = 1
	}
	return &History{maxSize: maxSize}
}

// Enqueue adds a line at the end.
func (h *History) Enqueue(item string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == h.maxSize {
		h.items = h.items[1:]
	}
	h.items = append(h.items, item)
}

// Dequeue removes and returns the oldest line.
func (h *History) Dequeue() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return "", errors.New("history is empty")
	}
	front := h.items[0]
	h.items = h.items[1:]
	return front, nil
}

// Len returns the number of lines kept.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// String joins the lines, each newline terminated.
func (h *History) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return ""
	}
	return strings.Join(h.items, "\n") + "\n"
}
