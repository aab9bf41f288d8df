package procutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TracerPid returns the pid of the process tracing pid, or 0 if pid is not
// being traced, from /proc/<pid>/status.
func TracerPid(pid int) (int, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok || k != "TracerPid" {
			continue
		}
		tp, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("could not parse TracerPid %q of pid %d: %w", v, pid, err)
		}
		return tp, nil
	}
	return 0, fmt.Errorf("no TracerPid line in /proc/%d/status", pid)
}
