// Package procutil provides small probes for inspecting other processes.
package procutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive reports whether pid exists. A process we lack permission to signal
// still exists.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
