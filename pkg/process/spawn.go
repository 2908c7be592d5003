package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
)

// SpawnConfig describes how to launch the sidecar executable. The path is
// an abstract selector resolved by the packaging step; the supervisor does
// not derive per-platform paths itself.
type SpawnConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

// SpawnCmd launches one OS process and returns its handle together with a
// combined stdout+stderr stream.
type SpawnCmd func(ctx context.Context) (*os.Process, io.ReadCloser, error)

// NewStdSpawnCmd returns a SpawnCmd for the given configuration. Any
// failure it returns is fatal to startup: the supervisor never retries a
// spawn.
func NewStdSpawnCmd(spawn SpawnConfig, id string, logger logging.Logger) SpawnCmd {
	return func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
		if ctx == nil {
			logger.Errorf("Context cannot be nil, id: %s", id)
			return nil, nil, errors.NewValidationError("context cannot be nil", nil).WithContext("id", id)
		}

		if err := ValidateSpawnConfig(spawn); err != nil {
			logger.Errorf("Spawn configuration validation failed, id: %s, error: %v", id, err)
			return nil, nil, errors.NewValidationError("invalid spawn configuration", err).WithContext("id", id)
		}

		// Check if the sidecar binary is executable, and make it executable if it's not
		if err := ensureExecutable(spawn.ExecutablePath); err != nil {
			return nil, nil, errors.NewPermissionError("failed to ensure sidecar is executable", err).WithContext("id", id).WithContext("executable_path", spawn.ExecutablePath)
		}

		workDir := spawn.WorkingDirectory
		if workDir == "" {
			absPath, err := filepath.Abs(spawn.ExecutablePath)
			if err != nil {
				return nil, nil, errors.NewIOError("failed to get absolute path", err).WithContext("id", id).WithContext("executable_path", spawn.ExecutablePath)
			}
			workDir = filepath.Dir(absPath)
		}

		logger.Debugf("Spawning sidecar: id: %s, executable path: '%s', args: %v, working directory: '%s'",
			id, spawn.ExecutablePath, spawn.Args, workDir)

		env := os.Environ()
		for _, e := range spawn.Environment {
			env = append(env, e)
		}

		cmd := exec.CommandContext(ctx, spawn.ExecutablePath, spawn.Args...)
		cmd.Dir = workDir
		cmd.Env = env

		// Platform-specific setup is handled in sysattr_*.go
		setupProcessAttributes(cmd)

		// wait after sending the interrupt signal, before sending the kill signal
		cmd.WaitDelay = spawn.WaitDelay

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, errors.NewProcessError("failed to create stdout pipe", err).WithContext("id", id).WithContext("executable_path", spawn.ExecutablePath)
		}
		// The readiness handshake arrives on stdout; fold stderr into the
		// same stream so backend logs travel with it
		cmd.Stderr = cmd.Stdout

		err = cmd.Start()
		if err != nil {
			return nil, nil, errors.NewProcessError("failed to start the sidecar", err).WithContext("id", id).WithContext("executable_path", spawn.ExecutablePath)
		}

		logger.Infof("Successfully spawned sidecar, id: %s, PID: %d", id, cmd.Process.Pid)

		return cmd.Process, stdout, nil
	}
}

// ensureExecutable checks if a file is executable and makes it executable if it's not
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	// On Windows, files with .exe, .bat, .cmd extensions are inherently executable
	if runtime.GOOS == "windows" {
		ext := filepath.Ext(path)
		if ext == ".exe" || ext == ".bat" || ext == ".cmd" {
			return nil
		}
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil // Already executable
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, mode|0111); err != nil {
			return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
		}
	}

	return nil
}
