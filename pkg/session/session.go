// Package session runs a tracee controller on a dedicated OS thread and
// proxies commands and events over channels.
//
// OS tracing syscalls are bound to the thread that attached, so the
// controller cannot be called from arbitrary goroutines. A Session owns
// one goroutine, locked to its OS thread for the lifetime of the tracee;
// every primitive runs there. Commands (interrupt, resume, detach) are
// delivered over a channel, state changes are streamed out over another.
// Systems tracing multiple processes run one Session per tracee.
package session

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/debugshim/traceectl/pkg/ptracer"
	"github.com/debugshim/traceectl/pkg/tracee"
)

// ErrClosed is returned by commands issued after the session ended.
var ErrClosed = errors.New("session is closed")

// pollInterval bounds how long a shutdown or a command can be delayed by
// the non-blocking wait loop.
const pollInterval = 10 * time.Millisecond

type op int

const (
	opInterrupt op = iota
	opResume
	opResumeSyscall
	opDetach
)

type command struct {
	op    op
	sig   int
	reply chan error
}

// Session is a thread-confined tracee controller with a channel surface.
// All methods are safe to call from any goroutine.
type Session struct {
	pid      int
	events   chan tracee.Event
	commands chan command
	done     chan struct{}
	finished chan struct{}
	closing  sync.Once

	err error // set before events is closed
}

// New attaches to pid and starts the owning thread. It returns once the
// attach succeeded or failed.
func New(pid int, prim ptracer.Primitives) (*Session, error) {
	s := &Session{
		pid:      pid,
		events:   make(chan tracee.Event, 16),
		commands: make(chan command),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	attached := make(chan error, 1)
	go s.run(prim, attached)
	if err := <-attached; err != nil {
		return nil, err
	}
	return s, nil
}

// Events streams state changes out of the owning thread. The channel is
// closed when the tracee terminates, is detached, or the session is
// closed; Err reports why afterwards.
func (s *Session) Events() <-chan tracee.Event {
	return s.events
}

// Err returns the wait failure that ended the session, if any. Valid only
// after the Events channel is closed.
func (s *Session) Err() error {
	return s.err
}

// Interrupt requests a stop of the tracee.
func (s *Session) Interrupt() error {
	return s.do(command{op: opInterrupt})
}

// Resume continues a stopped tracee, injecting sig (0 = no signal).
func (s *Session) Resume(sig int) error {
	return s.do(command{op: opResume, sig: sig})
}

// ResumeSyscall continues a stopped tracee until the next syscall entry or
// exit, injecting sig (0 = no signal).
func (s *Session) ResumeSyscall(sig int) error {
	return s.do(command{op: opResumeSyscall, sig: sig})
}

// Detach releases the tracee and ends the session.
func (s *Session) Detach() error {
	return s.do(command{op: opDetach})
}

// Close ends the session, detaching first if a tracee is still held, and
// waits for the owning thread to finish. Safe to call more than once.
func (s *Session) Close() error {
	s.closing.Do(func() {
		close(s.done)
	})
	<-s.finished
	return nil
}

func (s *Session) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.commands <- cmd:
		return <-cmd.reply
	case <-s.finished:
		return ErrClosed
	}
}

// run is the owning thread: the only place tracing syscalls happen.
func (s *Session) run(prim ptracer.Primitives, attached chan<- error) {
	// Tracing syscalls are valid only from the attaching thread. The
	// thread is deliberately left locked so it is discarded with the
	// goroutine rather than reused.
	runtime.LockOSThread()
	defer close(s.finished)
	defer close(s.events)

	ctl, err := tracee.Attach(s.pid, prim)
	attached <- err
	if err != nil {
		return
	}
	defer func() {
		// Detach must be attempted even on teardown paths.
		if err := ctl.Detach(); err != nil && !errors.Is(err, tracee.ErrAlreadyTerminated) {
			slog.Warn("failed to detach on shutdown", "pid", s.pid, "error", err)
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.commands:
			err := s.apply(ctl, cmd)
			cmd.reply <- err
			if cmd.op == opDetach && err == nil {
				return
			}
		case <-ticker.C:
			if !s.poll(ctl) {
				return
			}
		}
	}
}

func (s *Session) apply(ctl *tracee.Controller, cmd command) error {
	switch cmd.op {
	case opInterrupt:
		return ctl.Interrupt()
	case opResume:
		return ctl.Resume(cmd.sig)
	case opResumeSyscall:
		return ctl.ResumeSyscall(cmd.sig)
	case opDetach:
		return ctl.Detach()
	default:
		return errors.New("unknown command")
	}
}

// poll drains pending state changes without blocking, so the loop stays
// responsive to commands and shutdown even when the tracee hangs. It
// reports whether the session should keep running.
func (s *Session) poll(ctl *tracee.Controller) bool {
	for {
		ev, err := ctl.WaitForChange(false)
		switch {
		case errors.Is(err, tracee.ErrNoChange):
			return true
		case err != nil:
			s.err = err
			return false
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return false
		}
		if ctl.State().Terminal() {
			return false
		}
	}
}
