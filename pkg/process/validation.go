package process

import (
	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
)

// ValidateSpawnConfig validates spawn configuration
func ValidateSpawnConfig(config SpawnConfig) error {
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	if config.WaitDelay < 0 {
		return errors.NewValidationError("wait delay cannot be negative", nil).WithContext("wait_delay", config.WaitDelay)
	}

	for i, env := range config.Environment {
		if env == "" {
			return errors.NewValidationError("environment entry cannot be empty", nil).WithContext("index", i)
		}
	}

	return nil
}
