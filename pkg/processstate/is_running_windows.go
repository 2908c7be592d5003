//go:build windows

package processstate

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// STILL_ACTIVE is the exit code reported for processes that have not
// terminated yet
const STILL_ACTIVE = 259

// IsProcessRunning checks if a Windows process is still running
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID format")
	}

	// Open process handle with minimal rights needed for status check
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, err // Process doesn't exist or access denied
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	err = windows.GetExitCodeProcess(handle, &exitCode)
	if err != nil {
		return false, err // Can't get exit code, assume dead
	}

	return exitCode == STILL_ACTIVE, nil
}
