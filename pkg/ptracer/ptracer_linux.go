package ptracer

import (
	"golang.org/x/sys/unix"
)

// WaitNoHang makes [Primitives.Wait] return immediately when no state
// change is pending.
const WaitNoHang = unix.WNOHANG

// New returns the Linux implementation of [Primitives].
func New() Primitives {
	return linuxPrimitives{}
}

type linuxPrimitives struct{}

func (linuxPrimitives) Seize(pid int) error {
	// PTRACE_SEIZE does not stop the tracee, unlike PTRACE_ATTACH which
	// sends SIGSTOP. x/sys/unix has no wrapper for it.
	return ptrace(unix.PTRACE_SEIZE, pid, 0, 0)
}

func (linuxPrimitives) Interrupt(pid int) error {
	// PTRACE_INTERRUPT is only valid after PTRACE_SEIZE; it replaces the
	// old SIGSTOP approach and avoids signal-delivery races.
	return ptrace(unix.PTRACE_INTERRUPT, pid, 0, 0)
}

func (linuxPrimitives) Cont(pid int, sig int) error {
	return unix.PtraceCont(pid, sig)
}

func (linuxPrimitives) Syscall(pid int, sig int) error {
	return unix.PtraceSyscall(pid, sig)
}

func (linuxPrimitives) SetOptions(pid int, options int) error {
	return unix.PtraceSetOptions(pid, options)
}

func (linuxPrimitives) Detach(pid int) error {
	return unix.PtraceDetach(pid)
}

func (linuxPrimitives) Wait(pid int, flags int) (int, int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, flags|unix.WALL, nil)
	if err != nil {
		return 0, 0, err
	}
	return wpid, int(ws), nil
}

func ptrace(req int, pid int, addr, data uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(req), uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
