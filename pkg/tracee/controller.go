package tracee

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/debugshim/traceectl/pkg/procutil"
	"github.com/debugshim/traceectl/pkg/ptracer"
	"golang.org/x/sys/unix"
)

// procfs probes used to corroborate raw errno values, which are ambiguous
// on their own (EPERM: no privilege vs. already traced; ESRCH: process
// gone vs. not in a ptrace-stop).
var (
	tracerPid    = procutil.TracerPid
	processAlive = procutil.Alive
)

// Controller owns the lifecycle of exactly one tracee.
//
// OS tracing syscalls are bound to the thread that attached, so a
// Controller is confined to the goroutine (locked to an OS thread) that
// called [Attach]. It must not be shared. See the session package for the
// command/event proxy that enforces this.
type Controller struct {
	pid  int
	prim ptracer.Primitives

	state      State
	exitCode   int
	termSignal unix.Signal
	optionsSet bool
	inSyscall  bool
}

// Attach seizes pid without stopping it and returns a controller in
// [StateRunning].
func Attach(pid int, prim ptracer.Primitives) (*Controller, error) {
	if err := prim.Seize(pid); err != nil {
		return nil, fmt.Errorf("failed to seize pid %d: %w", pid, mapAttachErr(pid, err))
	}
	slog.Debug("seized", "pid", pid)
	return &Controller{
		pid:   pid,
		prim:  prim,
		state: StateRunning,
	}, nil
}

func mapAttachErr(pid int, err error) error {
	switch {
	case errors.Is(err, unix.EPERM):
		if tp, tpErr := tracerPid(pid); tpErr == nil && tp != 0 {
			return fmt.Errorf("%w (tracer pid %d)", ErrAlreadyTraced, tp)
		}
		return ErrPermissionDenied
	case errors.Is(err, unix.ESRCH):
		return ErrNoSuchProcess
	}
	return err
}

// Pid returns the process id under control.
func (c *Controller) Pid() int {
	return c.pid
}

// State returns the last observed state.
func (c *Controller) State() State {
	return c.state
}

// ExitCode is valid once the state is [StateExited].
func (c *Controller) ExitCode() int {
	return c.exitCode
}

// TermSignal is valid once the state is [StateSignaled].
func (c *Controller) TermSignal() unix.Signal {
	return c.termSignal
}

// Interrupt requests a stop of a running tracee. It does not block; the
// resulting stop is observed via WaitForChange.
func (c *Controller) Interrupt() error {
	if err := c.require(StateRunning); err != nil {
		return err
	}
	if err := c.prim.Interrupt(c.pid); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("failed to interrupt pid %d: %w", c.pid, ErrProcessGone)
		}
		return fmt.Errorf("failed to interrupt pid %d: %w", c.pid, err)
	}
	c.state = StateInterrupting
	return nil
}

// Resume continues a stopped tracee, injecting sig (0 = no signal).
func (c *Controller) Resume(sig int) error {
	return c.resume(sig, c.prim.Cont)
}

// ResumeSyscall continues a stopped tracee until the next syscall entry or
// exit, injecting sig (0 = no signal).
func (c *Controller) ResumeSyscall(sig int) error {
	return c.resume(sig, c.prim.Syscall)
}

func (c *Controller) resume(sig int, cont func(pid, sig int) error) error {
	if err := c.require(StateStopped); err != nil {
		return err
	}
	if err := cont(c.pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("failed to resume pid %d: %w", c.pid, ErrProcessGone)
		}
		return fmt.Errorf("failed to resume pid %d: %w", c.pid, err)
	}
	c.state = StateRunning
	return nil
}

// WaitForChange waits for the tracee to stop, exit, or be killed, and
// returns the translated event. The state is updated before the event is
// returned. EINTR from the wait primitive is retried transparently. A
// non-blocking call returns [ErrNoChange] when nothing is pending.
//
// WaitForChange must run on the thread that attached.
func (c *Controller) WaitForChange(blocking bool) (Event, error) {
	switch c.state {
	case StateExited, StateSignaled:
		return Event{}, ErrAlreadyTerminated
	case StateDetached:
		return Event{}, fmt.Errorf("%w: not attached", ErrInvalidState)
	}
	var flags int
	if !blocking {
		flags = ptracer.WaitNoHang
	}
	for {
		wpid, status, err := c.prim.Wait(c.pid, flags)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				// interrupted syscall, not a real failure
				continue
			case errors.Is(err, unix.ECHILD):
				return Event{}, fmt.Errorf("failed to wait for pid %d: %w", c.pid, ErrProcessGone)
			}
			return Event{}, fmt.Errorf("failed to wait for pid %d: %w", c.pid, err)
		}
		if wpid == 0 {
			return Event{}, ErrNoChange
		}
		ev, ok := c.translate(unix.WaitStatus(status))
		if !ok {
			// e.g. WCONTINUED; no state change worth reporting
			if !blocking {
				return Event{}, ErrNoChange
			}
			continue
		}
		return ev, nil
	}
}

// Detach releases the tracee. The detach primitive is a restart operation
// and requires a ptrace-stop, so a running tracee is interrupted and the
// resulting stop consumed internally first. A tracee that already
// disappeared is treated as success: the purpose (giving up control) is
// already satisfied. Detaching twice is a no-op.
func (c *Controller) Detach() error {
	switch c.state {
	case StateExited, StateSignaled:
		return ErrAlreadyTerminated
	case StateDetached:
		return nil
	case StateRunning, StateInterrupting:
		if err := c.stopForDetach(); err != nil {
			if errors.Is(err, ErrProcessGone) && !processAlive(c.pid) {
				c.state = StateDetached
				return nil
			}
			return err
		}
		if c.state.Terminal() {
			// died while being stopped; control is released either way
			return nil
		}
	}
	if err := c.prim.Detach(c.pid); err != nil {
		// ESRCH also means "not in a ptrace-stop", so it only counts as
		// already-gone when the process really is gone.
		if !errors.Is(err, unix.ESRCH) || processAlive(c.pid) {
			return fmt.Errorf("failed to detach from pid %d: %w", c.pid, err)
		}
	}
	c.state = StateDetached
	slog.Debug("detached", "pid", c.pid)
	return nil
}

// stopForDetach brings a running tracee into a ptrace-stop without
// reporting the stop to the caller.
func (c *Controller) stopForDetach() error {
	if c.state == StateRunning {
		if err := c.Interrupt(); err != nil {
			return err
		}
	}
	for c.state == StateInterrupting {
		if _, err := c.WaitForChange(true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) require(want State) error {
	if c.state == want {
		return nil
	}
	if c.state.Terminal() {
		return ErrAlreadyTerminated
	}
	return fmt.Errorf("%w: requires %s, state is %s", ErrInvalidState, want, c.state)
}
