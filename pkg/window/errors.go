package window

import "errors"

// Common errors returned by the window package.
var (
	// ErrBadClock is returned for unparseable reset time hints.
	ErrBadClock = errors.New("unparseable reset clock")

	// ErrNoSnapshots is returned when reconstruction is attempted
	// with no snapshot records.
	ErrNoSnapshots = errors.New("no snapshot records")
)
