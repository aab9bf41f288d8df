// Package tracee implements the lifecycle state machine for a single
// traced process: seize, interrupt, resume, wait, detach.
//
// The controller is the only consumer of the raw primitive layer and the
// only place where raw wait statuses and errno values are interpreted.
package tracee

import (
	"errors"

	"golang.org/x/sys/unix"
)

// State of the tracee, as last observed by the controller.
type State int

const (
	// StateDetached means no process is under control.
	StateDetached State = iota
	// StateRunning means the tracee is executing.
	StateRunning
	// StateInterrupting means an interrupt was issued and the resulting
	// stop has not been observed yet.
	StateInterrupting
	// StateStopped means the tracee is in a ptrace stop.
	StateStopped
	// StateExited means the tracee terminated normally. Terminal.
	StateExited
	// StateSignaled means the tracee was terminated by a signal. Terminal.
	StateSignaled
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateRunning:
		return "running"
	case StateInterrupting:
		return "interrupting"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	case StateSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further state changes can occur.
func (s State) Terminal() bool {
	return s == StateExited || s == StateSignaled
}

// StopReason classifies a ptrace stop.
type StopReason int

const (
	// StopSignal is a signal-delivery stop. The signal is not delivered to
	// the tracee until Resume re-injects it.
	StopSignal StopReason = iota
	// StopInterrupt is the stop produced by Interrupt.
	StopInterrupt
	// StopGroup is a job-control (group) stop, e.g. SIGSTOP from a shell.
	StopGroup
	// StopSyscallEntry is a stop at syscall entry, after ResumeSyscall.
	StopSyscallEntry
	// StopSyscallExit is a stop at syscall exit, after ResumeSyscall.
	StopSyscallExit
)

func (r StopReason) String() string {
	switch r {
	case StopSignal:
		return "signal"
	case StopInterrupt:
		return "interrupt"
	case StopGroup:
		return "group-stop"
	case StopSyscallEntry:
		return "syscall-entry"
	case StopSyscallExit:
		return "syscall-exit"
	default:
		return "unknown"
	}
}

// EventKind discriminates [Event].
type EventKind int

const (
	// EventStopped reports a ptrace stop; Reason and Signal are set.
	EventStopped EventKind = iota
	// EventExited reports normal termination; ExitCode is set.
	EventExited
	// EventSignaled reports termination by a signal; Signal is set.
	EventSignaled
)

func (k EventKind) String() string {
	switch k {
	case EventStopped:
		return "stopped"
	case EventExited:
		return "exited"
	case EventSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// Event is a typed state change observed via WaitForChange.
type Event struct {
	Kind     EventKind
	Reason   StopReason  // EventStopped only
	Signal   unix.Signal // stop or termination signal
	ExitCode int         // EventExited only
}

var (
	// ErrInvalidState means the operation is not valid in the current state.
	ErrInvalidState = errors.New("operation invalid in current state")
	// ErrAlreadyTerminated means the tracee has exited or was killed and
	// the handle is terminal.
	ErrAlreadyTerminated = errors.New("tracee already terminated")
	// ErrPermissionDenied maps EPERM from the attach primitive.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoSuchProcess maps ESRCH from the attach primitive.
	ErrNoSuchProcess = errors.New("no such process")
	// ErrAlreadyTraced means another tracer holds the process.
	ErrAlreadyTraced = errors.New("process is already traced")
	// ErrProcessGone means the tracee disappeared underneath the controller.
	ErrProcessGone = errors.New("process is gone")
	// ErrNoChange is returned by a non-blocking WaitForChange when no state
	// change is pending.
	ErrNoChange = errors.New("no state change pending")
)
