package sidecar

import (
	"os"
	"time"

	"github.com/core-tools/hsu-sidecar-go/pkg/errors"
	"github.com/core-tools/hsu-sidecar-go/pkg/process"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level configuration file structure
type Config struct {
	Sidecar SidecarConfigOptions `yaml:"sidecar"`
	Spawn   process.SpawnConfig  `yaml:"spawn"`
}

// SidecarConfigOptions represents supervisor-level configuration
type SidecarConfigOptions struct {
	ID       string `yaml:"id,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// LoadConfigFromFile loads supervisor configuration from a YAML file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := ValidateSidecarID(config.Sidecar.ID); err != nil {
		return errors.NewValidationError("invalid sidecar ID", err)
	}

	if err := process.ValidateSpawnConfig(config.Spawn); err != nil {
		return errors.NewValidationError("invalid spawn configuration", err)
	}

	return nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) {
	if config.Sidecar.ID == "" {
		config.Sidecar.ID = "backend"
	}
	if config.Sidecar.LogLevel == "" {
		config.Sidecar.LogLevel = "info"
	}
	if config.Spawn.WaitDelay == 0 {
		config.Spawn.WaitDelay = 10 * time.Second
	}
}
