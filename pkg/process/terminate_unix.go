//go:build !windows

package process

import (
	"syscall"
)

// SendTerminationSignal sends SIGTERM to the sidecar's process group on
// Unix systems. Negative PID addresses the whole group, so children of the
// sidecar are signalled too. Single shot: there is no escalation staging.
func SendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
