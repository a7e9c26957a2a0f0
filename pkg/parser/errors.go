package parser

import (
	"errors"
	"fmt"
)

// Common errors returned by the parser package.
var (
	// ErrInvalidTimestamp is returned when a record has a zero timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp: must not be zero")

	// ErrInvalidModel is returned when a record has an empty model identifier.
	ErrInvalidModel = errors.New("invalid model: must not be empty")

	// ErrNegativeTokenCount is returned when any token count is negative.
	ErrNegativeTokenCount = errors.New("invalid token count: must be non-negative")

	// ErrMalformedLine is returned when a JSONL line cannot be parsed.
	ErrMalformedLine = errors.New("malformed JSON line")

	// ErrNotUsageEvent is returned for well-formed lines that carry no
	// token usage (user turns, tool results, summaries). These are not
	// warnings; the log interleaves them with usage events by design.
	ErrNotUsageEvent = errors.New("line is not a usage event")

	// ErrFileTooLarge is returned when a file exceeds the maximum size limit.
	ErrFileTooLarge = errors.New("file size exceeds maximum limit")

	// ErrLineTooLong is reported for lines over MaxLineLength. Such
	// lines are skipped during file parsing, never fatal.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// ParseError provides context about a parsing failure.
type ParseError struct {
	Line   int    // Line number where error occurred (1-indexed)
	Offset int64  // Byte offset of the line within the file
	Data   string // The malformed line (truncated if too long)
	Err    error  // Underlying error
}

func (e *ParseError) Error() string {
	const maxLen = 100
	data := e.Data
	if len(data) > maxLen {
		data = data[:maxLen] + "..."
	}
	return fmt.Sprintf("parse error at line %d (offset %d): %s: %v", e.Line, e.Offset, data, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
