package session

import (
	"sync"
	"testing"
	"time"

	"github.com/debugshim/traceectl/pkg/ptracer"
	"github.com/debugshim/traceectl/pkg/tracee"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

// fakePrim is a concurrency-safe ptracer.Primitives: the session thread
// polls it while the test goroutine queues wait results. Like the kernel,
// it guarantees that an interrupt is followed by an observable stop.
type fakePrim struct {
	mu               sync.Mutex
	calls            map[string]int
	waits            []waitResult
	pendingInterrupt bool
	seizeErr         error
}

type waitResult struct {
	wpid   int
	status int
}

var _ ptracer.Primitives = (*fakePrim)(nil)

func newFakePrim() *fakePrim {
	return &fakePrim{calls: map[string]int{}}
}

func (f *fakePrim) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakePrim) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePrim) queue(pid, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, waitResult{wpid: pid, status: status})
}

func (f *fakePrim) Seize(pid int) error {
	f.record("seize")
	return f.seizeErr
}

func (f *fakePrim) Interrupt(pid int) error {
	f.record("interrupt")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingInterrupt = true
	return nil
}

func (f *fakePrim) Cont(pid int, sig int) error { f.record("cont"); return nil }

func (f *fakePrim) Syscall(pid int, sig int) error { f.record("syscall"); return nil }

func (f *fakePrim) SetOptions(pid int, opts int) error { f.record("setoptions"); return nil }

func (f *fakePrim) Detach(pid int) error { f.record("detach"); return nil }

func (f *fakePrim) Wait(pid int, flags int) (int, int, error) {
	f.record("wait")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waits) > 0 {
		w := f.waits[0]
		f.waits = f.waits[1:]
		return w.wpid, w.status, nil
	}
	if f.pendingInterrupt {
		f.pendingInterrupt = false
		return pid, interruptStopStatus(), nil
	}
	return 0, 0, nil // nothing pending
}

// Raw Linux wait status encodings.

func interruptStopStatus() int {
	// PTRACE_EVENT_STOP << 16 | SIGTRAP << 8 | 0x7f
	return 128<<16 | int(unix.SIGTRAP)<<8 | 0x7f
}

func exitStatus(code int) int {
	return code << 8
}

const testPid = 1234

func recvEvent(t *testing.T, s *Session) tracee.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		assert.Assert(t, ok, "events channel closed early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return tracee.Event{}
}

func TestSessionLifecycle(t *testing.T) {
	prim := newFakePrim()
	s, err := New(testPid, prim)
	assert.NilError(t, err)
	defer s.Close()

	assert.NilError(t, s.Interrupt())

	ev := recvEvent(t, s)
	assert.Equal(t, tracee.EventStopped, ev.Kind)
	assert.Equal(t, tracee.StopInterrupt, ev.Reason)

	assert.NilError(t, s.Resume(0))
	prim.queue(testPid, exitStatus(0))

	ev = recvEvent(t, s)
	assert.Equal(t, tracee.EventExited, ev.Kind)
	assert.Equal(t, 0, ev.ExitCode)

	// Termination ends the session and closes the event stream.
	_, ok := <-s.Events()
	assert.Assert(t, !ok)
	assert.NilError(t, s.Err())
}

func TestSessionAttachFailure(t *testing.T) {
	prim := newFakePrim()
	prim.seizeErr = unix.ESRCH
	_, err := New(testPid, prim)
	assert.ErrorIs(t, err, tracee.ErrNoSuchProcess)
}

func TestSessionCloseDetaches(t *testing.T) {
	prim := newFakePrim()
	s, err := New(testPid, prim)
	assert.NilError(t, err)

	assert.NilError(t, s.Close())
	assert.Equal(t, 1, prim.count("detach"))
	// The tracee was running: detach had to interrupt it into a stop first.
	assert.Equal(t, 1, prim.count("interrupt"))

	// Closing again is a no-op, and commands fail cleanly.
	assert.NilError(t, s.Close())
	assert.ErrorIs(t, s.Interrupt(), ErrClosed)
}

func TestSessionDetachEndsSession(t *testing.T) {
	prim := newFakePrim()
	s, err := New(testPid, prim)
	assert.NilError(t, err)
	defer s.Close()

	assert.NilError(t, s.Detach())
	_, ok := <-s.Events()
	assert.Assert(t, !ok)
	assert.Equal(t, 1, prim.count("detach"))
	assert.ErrorIs(t, s.Resume(0), ErrClosed)
}

func TestSessionRejectsInvalidCommand(t *testing.T) {
	prim := newFakePrim()
	s, err := New(testPid, prim)
	assert.NilError(t, err)
	defer s.Close()

	// The tracee is running; there is nothing to resume.
	assert.ErrorIs(t, s.Resume(0), tracee.ErrInvalidState)
	assert.Equal(t, 0, prim.count("cont"))
}
