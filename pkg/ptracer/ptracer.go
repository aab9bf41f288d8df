// Package ptracer provides the raw process-tracing primitives consumed by
// [github.com/debugshim/traceectl/pkg/tracee].
//
// The primitives map one-to-one onto the OS tracing syscalls and carry no
// state. All error codes are surfaced verbatim; interpretation happens in
// the tracee package.
package ptracer

// Primitives is the raw tracing syscall surface.
//
// On most OSes these calls are only valid from the thread that performed
// Seize. Callers are responsible for thread confinement.
type Primitives interface {
	// Seize attaches to pid without stopping it.
	Seize(pid int) error
	// Interrupt stops a seized tracee. The resulting stop is observed via Wait.
	Interrupt(pid int) error
	// Cont resumes a stopped tracee, delivering sig (0 = no signal).
	Cont(pid int, sig int) error
	// Syscall resumes a stopped tracee until the next syscall entry or exit,
	// delivering sig (0 = no signal).
	Syscall(pid int, sig int) error
	// SetOptions sets the ptrace options for a stopped tracee.
	SetOptions(pid int, options int) error
	// Detach releases the tracee, resuming its execution.
	Detach(pid int) error
	// Wait waits for pid to change state and returns the pid that changed
	// together with the raw wait status. With [WaitNoHang] it returns
	// (0, 0, nil) when no change is pending.
	Wait(pid int, flags int) (wpid int, status int, err error)
}
