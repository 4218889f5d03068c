package console

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"
)

// view names of the monitor layout
const (
	FramesView    = "frames"
	RegistersView = "registers"
	StatusView    = "status"
)

// statusLines is how much of the status output the gui keeps.
const statusLines = 500

// ErrClosed is returned by WriteConsole once the gui is closed.
var ErrClosed = errors.New("console: gui closed")

// Gui type definition
type Gui struct {
	consoleOut  chan string // string channel, to which the status lines are sent to
	g           *gocui.Gui  // main gocui GUI object
	history     *History    // what the status view shows
	currentLine int         // counter to keep the position of the cursor

	done      chan struct{} // closed by Close
	closeOnce sync.Once
}

// NewGui returns a console drawing into the views Layout creates and starts
// the status writer.
func NewGui(g *gocui.Gui) *Gui {
	c := new(Gui)
	c.consoleOut = make(chan string, 64)
	c.done = make(chan struct{})
	c.g = g
	c.history = NewHistory(statusLines)
	c.initGui()
	return c
}

// initGui starts the goroutine moving status lines into the status view.
func (c *Gui) initGui() {
	go func() {
		for {
			select {
			case s := <-c.consoleOut:
				c.history.Enqueue(s)
				c.replace(StatusView, c.history.String())
			case <-c.done:
				return
			}
		}
	}()
}

// Close stops the status writer and drops every later update. Call it when
// the gocui main loop is left.
func (c *Gui) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the gui is closed.
func (c *Gui) Done() <-chan struct{} { return c.done }

// WriteConsole displays a string on the status view
func (c *Gui) WriteConsole(msg string) error {
	if c.closed() {
		return ErrClosed
	}
	for _, line := range strings.Split(msg, "\n") {
		if line == "" {
			continue
		}
		select {
		case c.consoleOut <- line:
			c.currentLine++
		case <-c.done:
			return ErrClosed
		}
	}
	return nil
}

// ShowFrames redraws the frame table view.
func (c *Gui) ShowFrames(table string) {
	c.replace(FramesView, table)
}

// ShowRegisters redraws the register view.
func (c *Gui) ShowRegisters(regs string) {
	c.replace(RegistersView, regs)
}

func (c *Gui) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Gui) replace(name, text string) {
	if c.closed() {
		return
	}
	c.g.Update(func(g *gocui.Gui) error {
		v, err := g.View(name)
		if err != nil {
			return ignoreUnknown(err)
		}
		v.Clear()
		fmt.Fprint(v, text)
		return nil
	})
}

// ignoreUnknown drops updates that arrive before the first layout.
func ignoreUnknown(err error) error {
	if err == gocui.ErrUnknownView {
		return nil
	}
	return err
}

// Layout is the gocui manager function of the monitor: frame table on top,
// registers in the middle, status at the bottom.
func Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// up -> frame table
	if v, err := g.SetView(FramesView, 0, 0, maxX-1, maxY-18); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Frames"
	}

	// middle -> register values
	if v, err := g.SetView(RegistersView, 0, maxY-17, maxX-1, maxY-14); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Registers"
		v.Wrap = true
	}
	// down -> status
	if v, err := g.SetView(StatusView, 0, maxY-13, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Autoscroll = true
	}
	return nil
}
