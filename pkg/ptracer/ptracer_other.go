//go:build !linux

package ptracer

import (
	"errors"
	"fmt"
	"runtime"
)

// WaitNoHang makes [Primitives.Wait] return immediately when no state
// change is pending.
const WaitNoHang = 1

// New returns a [Primitives] whose calls all fail with
// [errors.ErrUnsupported].
func New() Primitives {
	return unsupportedPrimitives{}
}

type unsupportedPrimitives struct{}

func (unsupportedPrimitives) Seize(pid int) error { return errUnsupported() }

func (unsupportedPrimitives) Interrupt(pid int) error { return errUnsupported() }

func (unsupportedPrimitives) Cont(pid int, sig int) error { return errUnsupported() }

func (unsupportedPrimitives) Syscall(pid int, sig int) error { return errUnsupported() }

func (unsupportedPrimitives) SetOptions(pid int, opts int) error { return errUnsupported() }

func (unsupportedPrimitives) Detach(pid int) error { return errUnsupported() }

func (unsupportedPrimitives) Wait(pid int, flags int) (int, int, error) {
	return 0, 0, errUnsupported()
}

func errUnsupported() error {
	return fmt.Errorf("process tracing on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}
