// Package parser provides JSONL parsing for Claude Code usage event
// logs. It extracts per-request token records and validates them for
// correctness.
//
// The parser handles malformed lines gracefully by logging warnings and
// skipping invalid entries rather than failing, and reports the byte
// offset of every record so downstream consumers can deduplicate across
// restarts.
//
// Example usage:
//
//	p := parser.New(logger.Default())
//	records, offset, err := p.ParseFile("/path/to/session.jsonl", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range records {
//	    fmt.Printf("Tokens: %d\n", rec.Usage.TotalTokens())
//	}
package parser

import (
	"time"
)

// TokenRecord is one normalized usage event from an event log file.
// Each record corresponds to one metered API request.
//
// Invariant: Timestamp must not be zero value.
// Invariant: Usage token counts must be non-negative.
// Invariant: (Source, Offset) uniquely identifies the record.
//
// Records are immutable once created.
type TokenRecord struct {
	// Timestamp is the absolute, timezone-aware event time.
	Timestamp time.Time

	// Model is the model identifier reported by the event.
	Model string

	// Usage holds the four token counters for the request.
	Usage Usage

	// Project is an opaque project identifier (the event's working
	// directory, or the parent directory name of the log file).
	Project string

	// RequestID is the upstream request identifier, when present.
	RequestID string

	// Source is the path of the log file the record came from.
	Source string

	// Offset is the byte offset of the record's line within Source.
	// Together with Source it forms the deduplication watermark.
	Offset int64
}

// Usage contains token consumption counters for a single request.
//
// Token types:
// - InputTokens: Regular input tokens (charged at standard rate)
// - OutputTokens: Generated output tokens (charged at higher rate)
// - CacheCreationTokens: Tokens written to the prompt cache
// - CacheReadTokens: Tokens read back from the prompt cache
//
// Invariant: All token counts must be >= 0.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
}

// TotalTokens returns the sum of all token types.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens +
		u.CacheCreationTokens + u.CacheReadTokens
}

// Add returns the element-wise sum of two usage counters.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + other.InputTokens,
		OutputTokens:        u.OutputTokens + other.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens + other.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens + other.CacheReadTokens,
	}
}

// Validate checks if all token counts are non-negative.
func (u Usage) Validate() error {
	if u.InputTokens < 0 || u.OutputTokens < 0 ||
		u.CacheCreationTokens < 0 || u.CacheReadTokens < 0 {
		return ErrNegativeTokenCount
	}
	return nil
}

// Validate checks if the token record satisfies all invariants.
//
// Returns an error if:
//   - Timestamp is zero value
//   - Model is empty
//   - Any token count is negative
//
// Thread-safety: This method is read-only and thread-safe.
func (r *TokenRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}

	if r.Model == "" {
		return ErrInvalidModel
	}

	return r.Usage.Validate()
}
