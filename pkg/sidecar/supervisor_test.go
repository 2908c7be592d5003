package sidecar

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
	"github.com/core-tools/hsu-sidecar-go/pkg/process"
	"github.com/core-tools/hsu-sidecar-go/pkg/terminationguard"
)

// MockLogger is a mock implementation of Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

func newQuietMockLogger() *MockLogger {
	logger := &MockLogger{}
	logger.On("Debugf", mock.Anything, mock.Anything).Maybe()
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logger.On("Warnf", mock.Anything, mock.Anything).Maybe()
	logger.On("Errorf", mock.Anything, mock.Anything).Maybe()
	return logger
}

// killRecorder counts termination attempts in place of a real signal
type killRecorder struct {
	mutex sync.Mutex
	calls int
	err   error
}

func (r *killRecorder) terminate(pid int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls++
	return r.err
}

func (r *killRecorder) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.calls
}

// guardRecorder tracks termination guard lifecycle in place of the OS mechanism
type guardRecorder struct {
	mutex  sync.Mutex
	closes int
}

func (g *guardRecorder) Active() bool {
	return true
}

func (g *guardRecorder) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.closes++
	return nil
}

func (g *guardRecorder) closeCount() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.closes
}

// testHarness wires a supervisor to an in-memory output stream
type testHarness struct {
	supervisor *Supervisor
	stdout     *io.PipeWriter
	kills      *killRecorder
	guard      *guardRecorder
	ready      chan uint16
}

func newTestHarness(t *testing.T, logger logging.Logger) *testHarness {
	reader, writer := io.Pipe()

	kills := &killRecorder{}
	guard := &guardRecorder{}
	ready := make(chan uint16, 8)

	spawn := func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
		return &os.Process{Pid: 12345}, reader, nil
	}

	supervisor, err := NewSupervisor(Options{
		ID:        "test-backend",
		Spawn:     spawn,
		Terminate: kills.terminate,
		NewGuard: func(pid int, logger logging.Logger) terminationguard.Guard {
			return guard
		},
		OnReady: func(port uint16) {
			ready <- port
		},
	}, logger)
	require.NoError(t, err)

	return &testHarness{
		supervisor: supervisor,
		stdout:     writer,
		kills:      kills,
		guard:      guard,
		ready:      ready,
	}
}

func (h *testHarness) start(t *testing.T) {
	require.NoError(t, h.supervisor.Start(context.Background()))
}

func (h *testHarness) writeLine(t *testing.T, line string) {
	_, err := fmt.Fprintf(h.stdout, "%s\n", line)
	require.NoError(t, err)
}

func (h *testHarness) waitReady(t *testing.T) uint16 {
	select {
	case port := <-h.ready:
		return port
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readiness notification")
		return 0
	}
}

// ===== READINESS MONITOR / PORT ACCESSOR =====

func TestSupervisor_ReadinessRoundTrip(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	// Before any readiness line, the port query is a typed not-ready error
	_, err := h.supervisor.Port()
	require.Error(t, err)
	assert.True(t, errors.IsNotReadyError(err))
	assert.Contains(t, err.Error(), "Backend not ready yet")

	h.writeLine(t, "BACKEND_READY:53211")
	assert.Equal(t, uint16(53211), h.waitReady(t))

	port, err := h.supervisor.Port()
	require.NoError(t, err)
	assert.Equal(t, uint16(53211), port)
}

func TestSupervisor_LastValidPortWins(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	h.writeLine(t, "BACKEND_READY:1000")
	assert.Equal(t, uint16(1000), h.waitReady(t))

	h.writeLine(t, "BACKEND_READY:2000")
	assert.Equal(t, uint16(2000), h.waitReady(t))

	port, err := h.supervisor.Port()
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), port)
}

func TestSupervisor_NoiseTolerance(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	// Ordinary log output, a malformed suffix and an out-of-range value
	// are all ignored silently
	h.writeLine(t, "log: starting up")
	h.writeLine(t, "BACKEND_READY:abc")
	h.writeLine(t, "BACKEND_READY:70000")
	h.writeLine(t, "  BACKEND_READY:8080  ")

	assert.Equal(t, uint16(8080), h.waitReady(t))

	port, err := h.supervisor.Port()
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), port)
}

func TestSupervisor_NeverReady(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	h.writeLine(t, "log: still warming up")

	// No timeout promotes the state: the query keeps failing indefinitely
	assert.Never(t, func() bool {
		_, err := h.supervisor.Port()
		return err == nil
	}, 300*time.Millisecond, 50*time.Millisecond)

	_, err := h.supervisor.Port()
	assert.True(t, errors.IsNotReadyError(err))
}

func TestSupervisor_PortBeforeStart(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())

	_, err := h.supervisor.Port()
	assert.True(t, errors.IsNotReadyError(err))
	assert.Equal(t, 0, h.supervisor.Pid())
}

func TestSupervisor_StreamCloseEndsMonitor(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)

	h.writeLine(t, "BACKEND_READY:9090")
	assert.Equal(t, uint16(9090), h.waitReady(t))

	require.NoError(t, h.stdout.Close())

	// The discovered port survives stream closure
	port, err := h.supervisor.Port()
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), port)
}

// ===== EXIT COORDINATOR / KILL CAPABILITY =====

func TestSupervisor_IdempotentKill(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	// Both lifecycle events fire; the capability is consumed exactly once
	h.supervisor.HandleExitRequested()
	h.supervisor.HandleExit()

	assert.Equal(t, 1, h.kills.count())
	assert.Equal(t, 1, h.guard.closeCount())
	assert.Equal(t, SupervisorStateExited, h.supervisor.State())
}

func TestSupervisor_ExitWithoutExitRequested(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	// The final-exit safety net kills on its own when the graceful
	// request never happened
	h.supervisor.HandleExit()

	assert.Equal(t, 1, h.kills.count())
	assert.Equal(t, 1, h.guard.closeCount())
}

func TestSupervisor_ExitEventsBeforeStart(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())

	// Capability was never armed: both events are safe no-ops
	h.supervisor.HandleExitRequested()
	h.supervisor.HandleExit()

	assert.Equal(t, 0, h.kills.count())
}

func TestSupervisor_KillFailureIsAbsorbed(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Debugf", mock.Anything, mock.Anything).Maybe()
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logger.On("Errorf", mock.Anything, mock.Anything).Maybe()
	logger.On("Warnf", mock.Anything, mock.Anything).Once()

	h := newTestHarness(t, logger)
	h.kills.err = fmt.Errorf("operation not permitted")
	h.start(t)
	defer h.stdout.Close()

	// Kill failure is logged, never propagated; the capability stays consumed
	h.supervisor.HandleExitRequested()
	h.supervisor.HandleExit()

	assert.Equal(t, 1, h.kills.count())
	logger.AssertExpectations(t)
}

// ===== TERMINATION GUARD INTEGRATION =====

func TestSupervisor_GuardFailureIsNonFatal(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	kills := &killRecorder{}

	supervisor, err := NewSupervisor(Options{
		ID: "test-backend",
		Spawn: func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
			return &os.Process{Pid: 12345}, reader, nil
		},
		Terminate: kills.terminate,
		NewGuard: func(pid int, logger logging.Logger) terminationguard.Guard {
			// Simulates platform guard creation failure
			return terminationguard.NewInert()
		},
	}, newQuietMockLogger())
	require.NoError(t, err)

	// Spawn still succeeds without the OS-level guarantee
	require.NoError(t, supervisor.Start(context.Background()))

	// The explicit kill path still terminates the child
	supervisor.HandleExitRequested()
	supervisor.HandleExit()
	assert.Equal(t, 1, kills.count())
}

// ===== SUPERVISOR LIFECYCLE =====

func TestSupervisor_StartTwiceFails(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())
	h.start(t)
	defer h.stdout.Close()

	err := h.supervisor.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSupervisor_NilContext(t *testing.T) {
	h := newTestHarness(t, newQuietMockLogger())

	err := h.supervisor.Start(nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSupervisor_SpawnFailureIsFatal(t *testing.T) {
	spawnErr := errors.NewProcessError("failed to start the sidecar", nil)

	supervisor, err := NewSupervisor(Options{
		ID: "test-backend",
		Spawn: func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
			return nil, nil, spawnErr
		},
		Terminate: (&killRecorder{}).terminate,
		NewGuard: func(pid int, logger logging.Logger) terminationguard.Guard {
			return terminationguard.NewInert()
		},
	}, newQuietMockLogger())
	require.NoError(t, err)

	err = supervisor.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
	assert.Equal(t, SupervisorStateNotStarted, supervisor.State())
}

func TestNewSupervisor_RequiresSpawn(t *testing.T) {
	_, err := NewSupervisor(Options{}, newQuietMockLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

// ===== REAL PROCESS INTEGRATION =====

func TestSupervisor_WithRealSidecarProcess(t *testing.T) {
	executable := "/bin/echo"
	args := []string{"BACKEND_READY:35791"}
	if runtime.GOOS == "windows" {
		executable = "C:/Windows/System32/cmd.exe"
		args = []string{"/c", "echo", "BACKEND_READY:35791"}
	}

	kills := &killRecorder{}
	ready := make(chan uint16, 1)

	spawn := process.NewStdSpawnCmd(process.SpawnConfig{
		ExecutablePath: executable,
		Args:           args,
		WaitDelay:      time.Second,
	}, "test-backend", newQuietMockLogger())

	supervisor, err := NewSupervisor(Options{
		ID:        "test-backend",
		Spawn:     spawn,
		Terminate: kills.terminate,
		NewGuard: func(pid int, logger logging.Logger) terminationguard.Guard {
			return terminationguard.NewInert()
		},
		OnReady: func(port uint16) {
			ready <- port
		},
	}, newQuietMockLogger())
	require.NoError(t, err)

	require.NoError(t, supervisor.Start(context.Background()))
	assert.Greater(t, supervisor.Pid(), 0)

	select {
	case port := <-ready:
		assert.Equal(t, uint16(35791), port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for readiness from real sidecar process")
	}

	// The child exits on its own; its discovered port remains authoritative
	select {
	case <-supervisor.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sidecar exit")
	}

	port, err := supervisor.Port()
	require.NoError(t, err)
	assert.Equal(t, uint16(35791), port)

	supervisor.HandleExitRequested()
	supervisor.HandleExit()
	assert.Equal(t, 1, kills.count())
}

// ===== BUILDING BLOCKS =====

func TestKillCapability_AtMostOnce(t *testing.T) {
	capability := &killCapability{}
	assert.Nil(t, capability.take(), "take before arm is a safe no-op")

	calls := 0
	capability.arm(func() error {
		calls++
		return nil
	})

	kill := capability.take()
	require.NotNil(t, kill)
	require.NoError(t, kill())
	assert.Equal(t, 1, calls)

	assert.Nil(t, capability.take(), "second take gets nothing")
	assert.Nil(t, capability.take())
}

func TestPortState_SnapshotReads(t *testing.T) {
	state := &portState{}

	_, ok := state.get()
	assert.False(t, ok)

	state.set(1000)
	port, ok := state.get()
	require.True(t, ok)
	assert.Equal(t, uint16(1000), port)

	state.set(2000)
	port, _ = state.get()
	assert.Equal(t, uint16(2000), port)
}
