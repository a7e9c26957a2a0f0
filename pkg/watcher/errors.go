package watcher

import "errors"

// Common errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when using a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNoWatchableRoots is returned when none of the configured
	// roots exist.
	ErrNoWatchableRoots = errors.New("no watchable roots")

	// ErrTooManyFailures is reported after repeated fsnotify errors.
	ErrTooManyFailures = errors.New("too many consecutive watcher failures")
)
