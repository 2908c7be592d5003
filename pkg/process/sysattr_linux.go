//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes configures Linux-specific process attributes
func setupProcessAttributes(cmd *exec.Cmd) {
	// Setpgid puts the sidecar in its own process group so termination
	// signals sent to -pid reach the entire tree.
	//
	// Pdeathsig is the kernel half of the termination guarantee: the
	// sidecar receives SIGKILL when the supervising thread dies, even if
	// the host crashed and no cleanup code ran.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
