package system

import (
	"fmt"

	"vmsim/machine"
)

// Killed is returned by a memory access the running process did not survive.
type Killed struct {
	PID   int
	Name  string
	Cause error
}

func (k *Killed) Error() string {
	return fmt.Sprintf("process %s[%d] killed: %v", k.Name, k.PID, k.Cause)
}

func (k *Killed) Unwrap() error { return k.Cause }

// handleException is the kernel entry point for exceptions raised by address
// translation. Page faults are handed to the pager with the address the
// machine left in BadVAddrReg. Anything the kernel cannot resolve kills the
// running process and only that process.
func (sys *System) handleException(exc *machine.Exception) error {
	p := sys.current()
	if p == nil {
		return ErrNoProcess
	}

	var cause error = exc
	if exc.Type == machine.PageFault {
		addr := sys.Machine.ReadRegister(machine.BadVAddrReg)
		cause = sys.pager.HandleFault(p.Space, p.Thread, addr)
		if cause == nil {
			return nil
		}
	}

	sys.log.Error("killing process",
		"pid", p.PID,
		"name", p.Name,
		"exception", exc.Type.String(),
		"addr", exc.VAddr,
		"error", cause)
	sys.exit(p)
	return &Killed{PID: p.PID, Name: p.Name, Cause: cause}
}
