package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"vmsim/frames"
	"vmsim/threads"
)

type owner struct{}

func (owner) Invalidate(int) {}

func TestFrameTable(t *testing.T) {
	entries := []frames.Entry{
		{PID: 2, Page: 7, Age: 1, Thread: threads.New("prog", 2), Owner: owner{}},
		{PID: -1, Page: -1},
		{PID: 3, Page: 10, Age: 0, Owner: owner{}},
	}

	got := strings.Split(strings.TrimSuffix(FrameTable(entries, 0), "\n"), "\n")
	want := []string{
		"FRAME PID   PAGE  AGE   THREAD",
		"0     2     7     1     prog",
		"1     -     -     -     -",
		"2     3     10    0     -",
	}
	if len(got) != len(want) {
		t.Fatalf("FrameTable() has %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFrameTable_Truncate(t *testing.T) {
	entries := []frames.Entry{
		{PID: 1, Page: 0, Thread: threads.New("a-very-long-thread-name", 1), Owner: owner{}},
	}
	lines := strings.Split(FrameTable(entries, 0), "\n")
	if w := runewidth.StringWidth(lines[1]); w > 24+16 {
		t.Errorf("row width = %d, thread column not truncated: %q", w, lines[1])
	}

	for _, line := range strings.Split(strings.TrimSpace(FrameTable(entries, 12)), "\n") {
		if w := runewidth.StringWidth(line); w > 12 {
			t.Errorf("line %q is %d cells wide, want at most 12", line, w)
		}
	}
}

func TestSimple_WriteConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewSimpleWriter(&buf)

	if err := c.WriteConsole("page fault\n\nframe 3 evicted\n"); err != nil {
		t.Fatalf("WriteConsole() error = %v", err)
	}
	c.ShowRegisters("  |PC: 4 |  ")
	if got, want := buf.String(), "page fault\nframe 3 evicted\n|PC: 4 |\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if c.currentLine != 2 {
		t.Errorf("currentLine = %d, want 2", c.currentLine)
	}
}

func TestSimple_NoTerminal(t *testing.T) {
	c := NewSimpleWriter(&bytes.Buffer{})
	if k, err := c.NextKey(); err != nil || k != KeyRun {
		t.Errorf("NextKey() without a terminal = %q, %v, want %q", k, err, KeyRun)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	if _, err := h.Dequeue(); err == nil {
		t.Errorf("Dequeue() on an empty history returned no error")
	}
	for _, s := range []string{"a", "b", "c", "d"} {
		h.Enqueue(s)
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
	if got := h.String(); got != "b\nc\nd\n" {
		t.Errorf("String() = %q, want %q", got, "b\nc\nd\n")
	}
	if s, err := h.Dequeue(); err != nil || s != "b" {
		t.Errorf("Dequeue() = %q, %v, want b", s, err)
	}
}

func TestGui_Close(t *testing.T) {
	// no gocui needed: a closed gui never reaches it
	c := &Gui{consoleOut: make(chan string), done: make(chan struct{}), history: NewHistory(4)}
	c.initGui()
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done() not closed after Close()")
	}
	if err := c.WriteConsole("after quit"); err != ErrClosed {
		t.Errorf("WriteConsole() after Close() error = %v, want ErrClosed", err)
	}
	c.ShowFrames("FRAME\n")
	c.ShowRegisters(" |PC: 0 | ")
	if c.currentLine != 0 || c.history.Len() != 0 {
		t.Errorf("closed gui accepted output: %d lines, history %d", c.currentLine, c.history.Len())
	}
}
