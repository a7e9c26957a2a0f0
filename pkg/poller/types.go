// Package poller schedules periodic quota snapshot collection. Each
// tick invokes a PollFunc under a timeout; results are appended to a
// durable snapshot log and published to subscribers. Polling failures
// are counted but never fatal: after a configurable run of consecutive
// failures the poller reports itself degraded and keeps trying.
package poller

import (
	"context"
	"time"
)

// Result is one successfully scraped quota snapshot.
type Result struct {
	// SessionPercentUsed is the current session window utilization,
	// 0-100 as reported by the provider.
	SessionPercentUsed float64 `json:"session_percent_used"`

	// SessionResetsAt is the absolute time the current session window
	// ends, resolved from the provider's wall-clock reset hint.
	SessionResetsAt time.Time `json:"session_resets_at"`

	// OverageEnabled reports whether pay-per-use overage is active.
	OverageEnabled bool `json:"overage_enabled"`

	// OverageSpentUSD is the overage spend so far this billing period.
	OverageSpentUSD float64 `json:"overage_spent_usd,omitempty"`

	// OverageLimitUSD is the configured overage spending cap.
	OverageLimitUSD float64 `json:"overage_limit_usd,omitempty"`

	// OverageResetsAt is when the overage billing period rolls over.
	OverageResetsAt time.Time `json:"overage_resets_at,omitempty"`

	// Raw is the unparsed collaborator output the snapshot was
	// extracted from, retained for audit.
	Raw string `json:"raw,omitempty"`
}

// Record is a Result stamped with its observation time. Records are
// the unit persisted to the snapshot log.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Result
}

// PollFunc collects one quota snapshot. Implementations must honor
// ctx cancellation; the poller enforces a per-call timeout.
type PollFunc func(ctx context.Context) (Result, error)

// State describes the poller's health.
type State string

// Poller states.
const (
	// StateHealthy means the most recent poll succeeded.
	StateHealthy State = "healthy"

	// StateDegraded means consecutive failures reached the threshold.
	// Aggregation from event logs continues; only snapshot-derived
	// classification staleness grows.
	StateDegraded State = "degraded"

	// StateIdle means no poll has completed yet.
	StateIdle State = "idle"
)

// Health is a point-in-time view of poller status.
type Health struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	PollCount           int64     `json:"poll_count"`
	SkippedTicks        int64     `json:"skipped_ticks"`
}

// Config contains poller configuration.
type Config struct {
	// Interval between poll attempts. Default: 30s.
	Interval time.Duration

	// Timeout for a single poll attempt. Zero means Interval/2.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures after
	// which the poller reports StateDegraded. Default: 5.
	FailureThreshold int

	// Poll collects one snapshot. Required.
	Poll PollFunc
}
