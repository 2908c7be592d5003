//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes configures Windows-specific process attributes.
// The sidecar goes into its own process group so it can be terminated
// without disturbing the host's console signal handling; the die-with-host
// guarantee itself comes from the Job Object in pkg/terminationguard.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
