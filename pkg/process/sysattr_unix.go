//go:build !windows && !linux

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes configures Unix-specific process attributes
func setupProcessAttributes(cmd *exec.Cmd) {
	// Create a new process group that can be signalled as a whole, so a
	// SIGTERM to -pid affects the sidecar and all of its children. There
	// is no parent-death signal outside Linux; the termination guard
	// covers the deterministic release paths.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
