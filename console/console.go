// Package console is the monitor's output: status messages, the frame table
// and the registers of the running process. Gui draws them in gocui views,
// Simple prints them to stdout and steps on key presses.
package console

// Console is where the monitor reports to.
type Console interface {
	// WriteConsole appends msg to the status output, one entry per line
	WriteConsole(msg string) error
	// ShowFrames replaces the frame table
	ShowFrames(table string)
	// ShowRegisters replaces the register dump
	ShowRegisters(regs string)
}

var (
	_ Console = (*Gui)(nil)
	_ Console = (*Simple)(nil)
)
