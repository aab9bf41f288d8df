package tracee

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// Raw ptrace constants, spelled out here so that the status translation
// stays in one portable file. Values are from <sys/ptrace.h>.
const (
	// PTRACE_EVENT_STOP: reported for group-stops and PTRACE_INTERRUPT
	// stops under PTRACE_SEIZE.
	ptraceEventStop = 128
	// PTRACE_O_TRACESYSGOOD
	ptraceOptTraceSysgood = 1
	// Stop-signal bit set on syscall stops when TRACESYSGOOD is enabled.
	sigTraceSyscall = 0x80
)

// translate maps a raw wait status to an event, updating the state first
// so that a reentrant Resume sees the correct state. It returns false for
// statuses that carry no reportable change.
func (c *Controller) translate(ws unix.WaitStatus) (Event, bool) {
	switch {
	case ws.Exited():
		c.state = StateExited
		c.exitCode = ws.ExitStatus()
		return Event{Kind: EventExited, ExitCode: c.exitCode}, true
	case ws.Signaled():
		c.state = StateSignaled
		c.termSignal = ws.Signal()
		return Event{Kind: EventSignaled, Signal: c.termSignal}, true
	case ws.Stopped():
		reason, sig := c.stopReason(ws)
		c.state = StateStopped
		c.setOptionsOnce()
		return Event{Kind: EventStopped, Reason: reason, Signal: sig}, true
	default:
		slog.Debug("ignoring wait status", "pid", c.pid, "status", uint32(ws))
		return Event{}, false
	}
}

func (c *Controller) stopReason(ws unix.WaitStatus) (StopReason, unix.Signal) {
	sig := ws.StopSignal()
	if sig&sigTraceSyscall != 0 {
		sig &^= sigTraceSyscall
		if c.inSyscall {
			c.inSyscall = false
			return StopSyscallExit, sig
		}
		c.inSyscall = true
		return StopSyscallEntry, sig
	}
	if uint32(ws)>>16 == ptraceEventStop {
		switch sig {
		case unix.SIGSTOP, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
			return StopGroup, sig
		default:
			// PTRACE_INTERRUPT stops report SIGTRAP
			return StopInterrupt, sig
		}
	}
	return StopSignal, sig
}

// setOptionsOnce enables syscall-stop marking. PTRACE_SEIZE cannot apply
// options to a running tracee, so this has to wait for the first stop.
func (c *Controller) setOptionsOnce() {
	if c.optionsSet {
		return
	}
	if err := c.prim.SetOptions(c.pid, ptraceOptTraceSysgood); err != nil {
		slog.Debug("failed to set ptrace options", "pid", c.pid, "error", err)
		return
	}
	c.optionsSet = true
}
