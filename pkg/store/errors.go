package store

import "errors"

// Common errors returned by the store package.
var (
	// ErrStoreCorruption is returned when the database fails
	// integrity checks at open. The store refuses to operate on a
	// corrupt database rather than serve wrong aggregates.
	ErrStoreCorruption = errors.New("store corruption detected")

	// ErrSchemaMismatch is returned when the database was written by
	// an incompatible schema version.
	ErrSchemaMismatch = errors.New("store schema version mismatch")

	// ErrNotFound is returned when a requested summary does not exist.
	ErrNotFound = errors.New("summary not found")

	// ErrInvalidRange is returned for malformed date ranges.
	ErrInvalidRange = errors.New("invalid date range")
)
