package capture

import "errors"

// Common errors returned by the capture package.
var (
	// ErrNoSessionData is returned when the screen output carries no
	// session utilization.
	ErrNoSessionData = errors.New("no session data in output")

	// ErrEmptyCommand is returned when a command source is created
	// without a command.
	ErrEmptyCommand = errors.New("capture command is empty")
)
