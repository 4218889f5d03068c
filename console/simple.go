package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tty "github.com/mattn/go-tty"
)

// Key commands understood by the simple console.
const (
	KeyStep = ' '
	KeyRun  = 'r'
	KeyQuit = 'q'
)

// Simple console type definition
type Simple struct {
	mu          sync.Mutex
	out         io.Writer
	keys        *tty.TTY // nil until OpenKeys, or when there is no terminal
	currentLine int      // number of status lines written
}

// NewSimple returns a console printing to stdout.
func NewSimple() *Simple {
	return NewSimpleWriter(os.Stdout)
}

// NewSimpleWriter returns a console printing to w.
func NewSimpleWriter(w io.Writer) *Simple {
	return &Simple{out: w}
}

// OpenKeys puts the controlling terminal in raw mode so that NextKey gets
// single key presses.
func (c *Simple) OpenKeys() error {
	t, err := tty.Open()
	if err != nil {
		return err
	}
	c.keys = t
	return nil
}

// NextKey blocks until a key is pressed. Without a terminal it always
// answers KeyRun.
func (c *Simple) NextKey() (rune, error) {
	if c.keys == nil {
		return KeyRun, nil
	}
	r, err := c.keys.ReadRune()
	if err != nil {
		return 0, err
	}
	switch r {
	case '\r', '\n':
		return KeyStep, nil
	case 3: // ctrl-c in raw mode
		return KeyQuit, nil
	}
	return r, nil
}

// Close restores the terminal.
func (c *Simple) Close() error {
	if c.keys == nil {
		return nil
	}
	err := c.keys.Close()
	c.keys = nil
	return err
}

// WriteConsole displays a string on the console
func (c *Simple) WriteConsole(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		if line != "" {
			if _, err := fmt.Fprintf(c.out, "%s\n", line); err != nil {
				return err
			}
			c.currentLine++
		}
	}
	return nil
}

// ShowFrames prints the frame table.
func (c *Simple) ShowFrames(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, table)
}

// ShowRegisters prints the register dump on one line.
func (c *Simple) ShowRegisters(regs string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s\n", strings.TrimSpace(regs))
}
