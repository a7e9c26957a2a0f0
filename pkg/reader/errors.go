package reader

import "errors"

// Common errors returned by the reader package.
var (
	// ErrNegativeOffset is returned when a negative offset is stored.
	ErrNegativeOffset = errors.New("offset must be non-negative")

	// ErrFileNotFound is returned when the event file does not exist.
	ErrFileNotFound = errors.New("event file not found")
)
