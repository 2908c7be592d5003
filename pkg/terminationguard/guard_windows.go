//go:build windows

package terminationguard

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
)

// Process access rights needed to assign an existing process to a job
const PROCESS_SET_QUOTA = 0x0100

// jobObjectGuard holds a Job Object configured with KILL_ON_JOB_CLOSE.
// The handle stays open for the life of the host; when the host terminates
// for any reason the kernel closes it and kills every process in the job.
type jobObjectGuard struct {
	job    windows.Handle
	logger logging.Logger

	mutex  sync.Mutex
	closed bool
}

// New creates a Job Object termination guard and assigns the sidecar to
// it. Creation is best-effort: every failure is a warning, never an error,
// and an inert guard is returned so explicit-kill paths still run.
func New(pid int, logger logging.Logger) Guard {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		logger.Warnf("Failed to create job object, running without termination guard: %v", err)
		return NewInert()
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{}
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE

	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		windows.CloseHandle(job)
		logger.Warnf("Failed to configure job object kill-on-close, running without termination guard: %v", err)
		return NewInert()
	}

	proc, err := windows.OpenProcess(PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		windows.CloseHandle(job)
		logger.Warnf("Failed to open sidecar process for job assignment, running without termination guard, PID: %d, error: %v", pid, err)
		return NewInert()
	}
	defer windows.CloseHandle(proc)

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		logger.Warnf("Failed to assign sidecar to job object, running without termination guard, PID: %d, error: %v", pid, err)
		return NewInert()
	}

	logger.Infof("Job object termination guard attached, PID: %d", pid)

	return &jobObjectGuard{
		job:    job,
		logger: logger,
	}
}

func (g *jobObjectGuard) Active() bool {
	return true
}

// Close releases the job handle, which triggers KILL_ON_JOB_CLOSE for the
// sidecar and any of its descendants
func (g *jobObjectGuard) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	g.logger.Debugf("Releasing job object termination guard")
	return windows.CloseHandle(g.job)
}
