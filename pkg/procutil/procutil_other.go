//go:build !linux

package procutil

import (
	"errors"
	"fmt"
	"runtime"
)

// TracerPid returns the pid of the process tracing pid. Not implemented
// outside Linux.
func TracerPid(pid int) (int, error) {
	return 0, fmt.Errorf("TracerPid on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}
