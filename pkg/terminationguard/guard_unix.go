//go:build !windows

package terminationguard

import (
	"sync"
	"syscall"

	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
)

// processGroupGuard remembers the sidecar's process group and kills it on
// release. The crash-path guarantee on Linux comes from the parent-death
// signal set at spawn time; this guard covers the deterministic release
// paths (normal return, error return, unwind).
type processGroupGuard struct {
	pgid   int
	logger logging.Logger

	mutex  sync.Mutex
	closed bool
}

// New resolves the sidecar's process group and wraps it in a guard.
// Creation is best-effort: if the group cannot be resolved, an inert guard
// is returned and a warning logged.
func New(pid int, logger logging.Logger) Guard {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		logger.Warnf("Failed to resolve sidecar process group, running without termination guard, PID: %d, error: %v", pid, err)
		return NewInert()
	}

	logger.Infof("Process group termination guard attached, PID: %d, PGID: %d", pid, pgid)

	return &processGroupGuard{
		pgid:   pgid,
		logger: logger,
	}
}

func (g *processGroupGuard) Active() bool {
	return true
}

// Close kills the sidecar's process group. Graceful termination has
// already been attempted by the time the guard is released, so SIGKILL is
// the right signal here. ESRCH means the group is already gone.
func (g *processGroupGuard) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	g.logger.Debugf("Releasing process group termination guard, PGID: %d", g.pgid)

	err := syscall.Kill(-g.pgid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
