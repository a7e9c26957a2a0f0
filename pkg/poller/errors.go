package poller

import "errors"

// Common errors returned by the poller package.
var (
	// ErrNilPollFunc is returned when Config.Poll is not set.
	ErrNilPollFunc = errors.New("poll function is required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("poller already started")

	// ErrLogClosed is returned when appending to a closed snapshot log.
	ErrLogClosed = errors.New("snapshot log is closed")
)
