// Package window reconstructs session window boundaries and usage
// classification from quota snapshots. The provider meters usage in
// rolling five-hour windows but only ever reports the next reset time;
// this package recovers window start times, detects window
// transitions, and splits daily token volume into within-quota and
// overage portions with an explicit confidence tag.
package window

import (
	"time"
)

const (
	// Duration is the provider's session window length. Window starts
	// are recovered as reset time minus this duration.
	Duration = 5 * time.Hour

	// DefaultResetTolerance is how far the reported reset time may
	// drift between consecutive snapshots before it counts as a
	// window transition. Scrape jitter moves the reported clock by a
	// minute or so without any actual transition.
	DefaultResetTolerance = 2 * time.Minute

	// maxCoverageGap is the longest silence between consecutive
	// snapshots inside one day that still counts as continuous
	// coverage for confidence purposes.
	maxCoverageGap = 10 * time.Minute

	// overageUSDPerToken is the blended rate used to estimate how
	// many tokens a dollar of observed overage spend represents.
	overageUSDPerToken = 0.000003
)

// Confidence grades how trustworthy a day's classification is.
type Confidence string

// Classification confidence levels.
const (
	// ConfidenceExact means snapshot coverage was continuous for the
	// whole day and no estimation was needed.
	ConfidenceExact Confidence = "exact"

	// ConfidenceApproximate means coverage had gaps or the
	// within-quota/overage split relies on the token-per-dollar
	// estimate.
	ConfidenceApproximate Confidence = "approximate"

	// ConfidenceUnclassified means the day predates snapshot
	// coverage; no split is possible.
	ConfidenceUnclassified Confidence = "unclassified"
)

// SessionWindow is one recovered metering window.
type SessionWindow struct {
	// Start is the recovered window start (reset time minus Duration).
	Start time.Time

	// End is the reported reset time.
	End time.Time

	// PeakPercentUsed is the highest utilization observed while this
	// window was current.
	PeakPercentUsed float64

	// Snapshots is the number of observations attributed to the window.
	Snapshots int
}

// DayClassification is the per-day usage split derived from snapshots.
type DayClassification struct {
	// Date is the UTC day in 2006-01-02 form.
	Date string

	// TotalTokens is the day's total token volume from event logs.
	TotalTokens int64

	// WithinQuotaTokens is the portion covered by the subscription.
	WithinQuotaTokens int64

	// OverageTokens is the estimated pay-per-use portion.
	OverageTokens int64

	// OverageCostUSD is the observed overage spend increase that day.
	OverageCostUSD float64

	// SessionCount is the number of session windows that started
	// during the day.
	SessionCount int

	// Confidence grades the split.
	Confidence Confidence
}
