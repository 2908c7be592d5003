package terminationguard

import (
	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
)

// Guard holds an OS resource whose release forces termination of the
// sidecar and its descendants. The contract is "the child dies with the
// host": on Windows the kernel does it when the Job Object handle is
// closed (including implicitly, on abnormal host termination); on Unix the
// deterministic-release half kills the process group, and the crash half
// is the spawn-time parent-death signal on Linux.
type Guard interface {
	// Active reports whether an OS-level mechanism is actually attached.
	// An inert guard means creation failed and only explicit-kill paths
	// protect against orphans.
	Active() bool

	// Close releases the guard, forcing termination of everything assigned
	// to it. Idempotent.
	Close() error
}

// NewGuard is the factory signature, kept injectable so the supervisor can
// be tested without touching OS process machinery.
type NewGuard func(pid int, logger logging.Logger) Guard

// inertGuard is returned when the platform mechanism cannot be created.
// The supervisor proceeds with reduced guarantees.
type inertGuard struct{}

func (g *inertGuard) Active() bool {
	return false
}

func (g *inertGuard) Close() error {
	return nil
}

// NewInert returns a guard with no OS mechanism behind it
func NewInert() Guard {
	return &inertGuard{}
}
