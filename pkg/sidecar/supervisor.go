package sidecar

import (
	"context"
	"os"
	"sync"

	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
	"github.com/core-tools/hsu-sidecar-go/pkg/process"
	"github.com/core-tools/hsu-sidecar-go/pkg/processstate"
	"github.com/core-tools/hsu-sidecar-go/pkg/terminationguard"
)

// SupervisorState represents the current state of the supervisor
type SupervisorState string

const (
	// SupervisorStateNotStarted is the initial state before Start() is called
	SupervisorStateNotStarted SupervisorState = "not_started"

	// SupervisorStateStarting means spawn is in progress
	SupervisorStateStarting SupervisorState = "starting"

	// SupervisorStateRunning means the sidecar is spawned and supervised
	SupervisorStateRunning SupervisorState = "running"

	// SupervisorStateExitRequested means a graceful exit was requested
	SupervisorStateExitRequested SupervisorState = "exit_requested"

	// SupervisorStateExited is the terminal state after the final exit event
	SupervisorStateExited SupervisorState = "exited"
)

// Options configures a Supervisor. Spawn is required; the remaining hooks
// default to the real OS mechanisms and exist so state can be injected
// rather than reached through globals.
type Options struct {
	// ID names the sidecar in log output
	ID string

	// Spawn launches the sidecar process
	Spawn process.SpawnCmd

	// Terminate sends the termination signal; defaults to
	// process.SendTerminationSignal
	Terminate func(pid int) error

	// NewGuard attaches the OS termination guard; defaults to
	// terminationguard.New
	NewGuard terminationguard.NewGuard

	// OnReady is invoked after each successfully parsed readiness line,
	// for observability only
	OnReady func(port uint16)
}

// Supervisor owns exactly one sidecar process for the host's lifetime:
// it spawns the child, watches its output for the readiness handshake,
// exposes the discovered port, and funnels every exit event through one
// at-most-once kill capability backed by the OS termination guard.
type Supervisor struct {
	options Options
	logger  logging.Logger

	port portState
	kill killCapability

	// mutex guards the fields below; it is never held together with the
	// port or kill locks and never across a blocking call
	mutex   sync.Mutex
	state   SupervisorState
	process *os.Process
	guard   terminationguard.Guard

	done chan struct{}
}

// NewSupervisor creates a supervisor for one sidecar
func NewSupervisor(options Options, logger logging.Logger) (*Supervisor, error) {
	if options.Spawn == nil {
		return nil, errors.NewValidationError("spawn command is required", nil)
	}
	if options.ID == "" {
		options.ID = "backend"
	}
	if options.Terminate == nil {
		options.Terminate = process.SendTerminationSignal
	}
	if options.NewGuard == nil {
		options.NewGuard = terminationguard.New
	}

	return &Supervisor{
		options: options,
		logger:  logger,
		state:   SupervisorStateNotStarted,
		done:    make(chan struct{}),
	}, nil
}

// Start spawns the sidecar, attaches the termination guard and launches
// the readiness monitor. Spawn failure is fatal to startup: it is returned
// to the caller and never retried. Guard failure is not: the supervisor
// proceeds with explicit-kill paths only.
func (s *Supervisor) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	s.mutex.Lock()
	if s.state != SupervisorStateNotStarted {
		state := s.state
		s.mutex.Unlock()
		return errors.NewValidationError("supervisor already started", nil).WithContext("state", string(state))
	}
	s.state = SupervisorStateStarting
	s.mutex.Unlock()

	s.logger.Infof("Starting sidecar supervisor, id: %s", s.options.ID)

	proc, stdout, err := s.options.Spawn(ctx)
	if err != nil {
		s.mutex.Lock()
		s.state = SupervisorStateNotStarted
		s.mutex.Unlock()
		return errors.NewProcessError("failed to spawn sidecar", err).WithContext("id", s.options.ID)
	}

	// Attach the OS-level guarantee right after spawn, before anything can
	// fail, so no code path leaves the child unguarded
	guard := s.options.NewGuard(proc.Pid, s.logger)

	s.mutex.Lock()
	s.process = proc
	s.guard = guard
	s.state = SupervisorStateRunning
	s.mutex.Unlock()

	pid := proc.Pid
	s.kill.arm(func() error {
		return s.options.Terminate(pid)
	})

	go s.watchReadiness(stdout)
	go s.waitForExit(proc)

	return nil
}

// Port returns the port the sidecar announced, or a typed not-ready error
// if no valid readiness line has been observed yet. It never blocks;
// callers poll or display a pending state.
func (s *Supervisor) Port() (uint16, error) {
	port, ok := s.port.get()
	if !ok {
		return 0, errors.NewNotReadyError("Backend not ready yet", nil)
	}
	return port, nil
}

// Pid returns the sidecar's process identifier, 0 before Start
func (s *Supervisor) Pid() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.process == nil {
		return 0
	}
	return s.process.Pid
}

// State returns the current supervisor state (for monitoring/debugging)
func (s *Supervisor) State() SupervisorState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Done is closed once the sidecar's exit has been observed
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// HandleExitRequested is the exit coordinator's reaction to a graceful
// shutdown request from the host. It kills the sidecar through the
// at-most-once capability and must stay bounded: it runs synchronously
// inside the host's lifecycle callback.
func (s *Supervisor) HandleExitRequested() {
	s.transition(SupervisorStateExitRequested, "exit requested")
	s.killNow("exit_requested")
}

// HandleExit is the exit coordinator's reaction to final host exit. The
// kill here is the second safety net: if the exit-requested kill already
// consumed the capability this is a no-op. The termination guard is
// released afterwards, covering whatever the explicit kill missed.
func (s *Supervisor) HandleExit() {
	s.transition(SupervisorStateExited, "exit")
	s.killNow("exit")
	s.releaseGuard()
}

func (s *Supervisor) transition(state SupervisorState, event string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == state {
		return
	}
	s.logger.Infof("Supervisor %s, id: %s, state: %s -> %s", event, s.options.ID, s.state, state)
	s.state = state
}

// killNow drives the at-most-once kill capability. Termination is
// best-effort from the application side: failures are logged, never
// propagated, with the OS guard backing the catastrophic case.
func (s *Supervisor) killNow(event string) {
	kill := s.kill.take()
	if kill == nil {
		s.logger.Debugf("Kill capability already consumed, id: %s, event: %s", s.options.ID, event)
		return
	}

	pid := s.Pid()
	if running, _ := processstate.IsProcessRunning(pid); !running {
		s.logger.Debugf("Sidecar already terminated before kill, id: %s, PID: %d, event: %s", s.options.ID, pid, event)
	}

	if err := kill(); err != nil {
		s.logger.Warnf("Failed to terminate sidecar, id: %s, PID: %d, event: %s, error: %v", s.options.ID, pid, event, err)
		return
	}
	s.logger.Infof("Sidecar termination signal sent, id: %s, PID: %d, event: %s", s.options.ID, pid, event)
}

func (s *Supervisor) releaseGuard() {
	s.mutex.Lock()
	guard := s.guard
	s.mutex.Unlock()

	if guard == nil {
		return
	}
	if err := guard.Close(); err != nil {
		s.logger.Warnf("Failed to release termination guard, id: %s, error: %v", s.options.ID, err)
	}
}

func (s *Supervisor) waitForExit(proc *os.Process) {
	state, err := proc.Wait()
	if err != nil {
		s.logger.Infof("Sidecar PID %d wait failed: %v", proc.Pid, err)
	} else {
		s.logger.Infof("Sidecar PID %d exited, exit code: %d", proc.Pid, state.ExitCode())
	}
	close(s.done)
}
