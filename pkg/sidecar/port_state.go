package sidecar

import (
	"sync"
)

// portState is the single-writer-many-reader slot for the port the sidecar
// announced. The readiness monitor is the sole writer; a later readiness
// line overwrites an earlier one (last valid message wins). The lock is
// held only for the duration of a single read or write, never across a
// blocking point.
type portState struct {
	mutex sync.Mutex
	port  *uint16
}

func (s *portState) set(port uint16) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p := port
	s.port = &p
}

// get returns a snapshot of the current port; no ordering guarantee
// relative to an in-flight write beyond the one the lock establishes
func (s *portState) get() (uint16, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.port == nil {
		return 0, false
	}
	return *s.port, true
}
