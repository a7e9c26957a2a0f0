// Package store persists daily usage aggregates in a bbolt database.
// Raw token records are folded into per-day summaries on arrival; the
// original event lines are never copied. Merges are idempotent: each
// source file carries a merge watermark stored in the same transaction
// as the summaries it guards, so replayed records (startup rescans,
// crash recovery, watcher races) change nothing.
package store

import (
	"github.com/0xmhha/quota-monitor/pkg/parser"
	"github.com/0xmhha/quota-monitor/pkg/window"
)

// DateFormat is the bucket key layout for daily summaries. Lexical
// order equals chronological order, which range queries rely on.
const DateFormat = "2006-01-02"

// ModelUsage aggregates usage attributed to one model or project.
type ModelUsage struct {
	Usage      parser.Usage `json:"usage"`
	CostUSD    float64      `json:"cost_usd"`
	EventCount int64        `json:"event_count"`
}

// DailySummary is the aggregate for one UTC day.
//
// Invariant: counters only grow under merges; Rotate is the only
// operation that removes data, and it removes whole days.
type DailySummary struct {
	// Date is the UTC day in 2006-01-02 form.
	Date string `json:"date"`

	// Usage is the day's total token counters.
	Usage parser.Usage `json:"usage"`

	// CostUSD is the summed per-record cost at configured rates.
	CostUSD float64 `json:"cost_usd"`

	// EventCount is the number of merged records.
	EventCount int64 `json:"event_count"`

	// UnpricedEvents counts records whose model had no rate entry.
	// Their tokens are included in Usage but not in CostUSD.
	UnpricedEvents int64 `json:"unpriced_events,omitempty"`

	// WithinQuotaTokens and OverageTokens split the day's volume per
	// snapshot-derived classification. Zero until classified.
	WithinQuotaTokens int64 `json:"within_quota_tokens"`
	OverageTokens     int64 `json:"overage_tokens"`

	// OverageCostUSD is the observed overage spend for the day.
	OverageCostUSD float64 `json:"overage_cost_usd"`

	// SessionCount is the number of session windows started that day.
	SessionCount int `json:"session_count"`

	// Confidence grades the classification fields above.
	Confidence window.Confidence `json:"confidence"`

	// ByModel and ByProject break the day down by model identifier
	// and project.
	ByModel   map[string]ModelUsage `json:"by_model,omitempty"`
	ByProject map[string]ModelUsage `json:"by_project,omitempty"`
}

// Rollup is an aggregate over a range of daily summaries.
type Rollup struct {
	// From and To bound the rollup, inclusive, in 2006-01-02 form.
	From string `json:"from"`
	To   string `json:"to"`

	// Days is the number of days with data in range.
	Days int `json:"days"`

	Usage          parser.Usage `json:"usage"`
	CostUSD        float64      `json:"cost_usd"`
	EventCount     int64        `json:"event_count"`
	UnpricedEvents int64        `json:"unpriced_events,omitempty"`

	WithinQuotaTokens int64   `json:"within_quota_tokens"`
	OverageTokens     int64   `json:"overage_tokens"`
	OverageCostUSD    float64 `json:"overage_cost_usd"`
	SessionCount      int     `json:"session_count"`

	// CacheHitRatio is cache reads divided by cache writes, a
	// measure of how much prompt caching pays off.
	CacheHitRatio float64 `json:"cache_hit_ratio"`

	ByModel map[string]ModelUsage `json:"by_model,omitempty"`
}

// CacheHitRatio computes cache reads over cache writes, guarding the
// zero-write case.
func CacheHitRatio(u parser.Usage) float64 {
	writes := u.CacheCreationTokens
	if writes < 1 {
		writes = 1
	}
	return float64(u.CacheReadTokens) / float64(writes)
}
