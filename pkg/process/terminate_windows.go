//go:build windows

package process

import (
	"fmt"
	"os"
)

// SendTerminationSignal terminates the sidecar process on Windows. The
// sidecar is a pipe-only background service with no console of its own, so
// TerminateProcess via os.Process.Kill is the reliable path; descendants
// are covered by the Job Object in pkg/terminationguard.
func SendTerminationSignal(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %v", pid, err)
	}

	return proc.Kill()
}
