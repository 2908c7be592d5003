package sidecar

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ReadyPrefix is the handshake token: the sidecar announces the port it is
// listening on with one line of the exact form "BACKEND_READY:<port>".
// Both ends of the pipe hard-code it.
const ReadyPrefix = "BACKEND_READY:"

// watchReadiness consumes the sidecar's combined output line by line until
// the stream closes. Lines carrying the handshake prefix publish the
// parsed port (last valid wins); everything else is ordinary backend log
// noise and is forwarded to the debug log. Malformed or out-of-range
// suffixes are ignored the same way; the monitor never terminates the
// sidecar and never reports an error for a line.
func (s *Supervisor) watchReadiness(stdout io.ReadCloser) {
	defer stdout.Close()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ReadyPrefix) {
			s.logger.Debugf("sidecar: %s", line)
			continue
		}

		value, err := strconv.ParseUint(strings.TrimPrefix(line, ReadyPrefix), 10, 16)
		if err != nil {
			s.logger.Debugf("sidecar: %s", line)
			continue
		}

		port := uint16(value)
		s.port.set(port)
		s.logger.Infof("Backend ready on port %d", port)

		// Observability only: nothing blocks on this
		if s.options.OnReady != nil {
			s.options.OnReady(port)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Errorf("Sidecar output read failed: %v", err)
	}

	s.logger.Debugf("Sidecar output stream closed")
}
