package config

import (
	"errors"
	"fmt"
)

// Common errors returned by the config package.
var (
	// ErrNoEventLogDirs is returned when no event log directories are specified.
	ErrNoEventLogDirs = errors.New("no event log directories specified")

	// ErrInvalidPollInterval is returned when the poll interval is <= 0.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be > 0")

	// ErrInvalidPollTimeout is returned when the poll timeout is negative
	// or exceeds the poll interval.
	ErrInvalidPollTimeout = errors.New("invalid poll timeout: must be >= 0 and <= interval")

	// ErrInvalidFailureThreshold is returned when the failure threshold is <= 0.
	ErrInvalidFailureThreshold = errors.New("invalid failure threshold: must be > 0")

	// ErrInvalidRetention is returned when a retention horizon is <= 0.
	ErrInvalidRetention = errors.New("invalid retention horizon: must be > 0 days")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)

// ErrNegativeRate reports a pricing override with a negative rate.
type ErrNegativeRate struct {
	Model string
}

func (e ErrNegativeRate) Error() string {
	return fmt.Sprintf("invalid pricing rate for model %q: rates must be >= 0", e.Model)
}
