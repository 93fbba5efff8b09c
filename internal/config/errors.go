package config

import "errors"

// Error kinds returned by Load and Validate; match them with errors.Is.
var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading defaults, the YAML file or the environment.
	ErrLoadConfig = errors.New("load config failed")
)
