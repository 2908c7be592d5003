package sidecar

import (
	"strings"

	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
)

// ValidateSidecarID validates a sidecar identifier used in logs and config
func ValidateSidecarID(id string) error {
	if id == "" {
		return errors.NewValidationError("sidecar ID cannot be empty", nil)
	}

	if strings.TrimSpace(id) != id {
		return errors.NewValidationError("sidecar ID cannot have leading or trailing whitespace", nil).WithContext("id", id)
	}

	for _, r := range id {
		if r == ' ' || r == '\t' || r == '\n' {
			return errors.NewValidationError("sidecar ID cannot contain whitespace", nil).WithContext("id", id)
		}
	}

	return nil
}
