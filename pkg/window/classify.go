package window

import (
	"math"
	"sort"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/poller"
)

// Classify splits each day's token volume into within-quota and
// overage portions using observed overage spend deltas.
//
// coverageStart is when snapshot collection began; days that ended
// before it cannot be split and come back ConfidenceUnclassified. The
// overage token count is an estimate (spend delta divided by a blended
// per-token rate, capped at the day's total volume), so any day with
// nonzero overage is at best ConfidenceApproximate. A day is
// ConfidenceExact only when snapshot coverage was continuous for the
// whole day and no overage spend moved.
//
// Pass tolerance <= 0 for DefaultResetTolerance.
func Classify(records []poller.Record, volume HourlyVolume, coverageStart time.Time, tolerance time.Duration) []DayClassification {
	days := volume.Days()
	if len(days) == 0 {
		return nil
	}

	sorted := make([]poller.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	windows := Windows(sorted, tolerance)

	var asOf time.Time
	if len(sorted) > 0 {
		asOf = sorted[len(sorted)-1].Timestamp
	}

	out := make([]DayClassification, 0, len(days))
	for _, day := range days {
		dayStart := day
		dayEnd := day.Add(24 * time.Hour)
		total := volume.DayTotal(day)

		dc := DayClassification{
			Date:         day.Format("2006-01-02"),
			TotalTokens:  total,
			SessionCount: countStarts(windows, dayStart, dayEnd),
		}

		if coverageStart.IsZero() || !dayEnd.After(coverageStart) {
			dc.Confidence = ConfidenceUnclassified
			out = append(out, dc)
			continue
		}

		dayRecords := recordsBetween(sorted, dayStart, dayEnd)
		baseline, hasBaseline := lastSpendBefore(sorted, dayStart)
		delta := spendDelta(dayRecords, baseline, hasBaseline)

		overageTokens := int64(math.Round(delta / overageUSDPerToken))
		if overageTokens > total {
			overageTokens = total
		}

		dc.OverageTokens = overageTokens
		dc.WithinQuotaTokens = total - overageTokens
		dc.OverageCostUSD = delta

		switch {
		case delta == 0 && fullCoverage(dayRecords, dayStart, dayEnd, coverageStart, asOf):
			dc.Confidence = ConfidenceExact
		default:
			dc.Confidence = ConfidenceApproximate
		}

		out = append(out, dc)
	}

	return out
}

func countStarts(windows []SessionWindow, from, to time.Time) int {
	n := 0
	for _, w := range windows {
		if !w.Start.Before(from) && w.Start.Before(to) {
			n++
		}
	}
	return n
}

func recordsBetween(sorted []poller.Record, from, to time.Time) []poller.Record {
	lo := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(to)
	})
	return sorted[lo:hi]
}

// lastSpendBefore returns the overage spend reported by the last
// snapshot before t, and whether any such snapshot exists.
func lastSpendBefore(sorted []poller.Record, t time.Time) (float64, bool) {
	spend := 0.0
	found := false
	for _, rec := range sorted {
		if !rec.Timestamp.Before(t) {
			break
		}
		if rec.OverageEnabled {
			spend = rec.OverageSpentUSD
			found = true
		}
	}
	return spend, found
}

// spendDelta sums positive overage spend increments across the
// records. Without a baseline the first record only establishes one:
// its absolute spend accrued on earlier, unobserved days. A decrease
// means the billing period rolled over; spending after the rollover
// counts from zero rather than going negative.
func spendDelta(records []poller.Record, baseline float64, hasBaseline bool) float64 {
	prev := baseline
	delta := 0.0

	for _, rec := range records {
		if !rec.OverageEnabled {
			continue
		}
		if !hasBaseline {
			prev = rec.OverageSpentUSD
			hasBaseline = true
			continue
		}
		if rec.OverageSpentUSD >= prev {
			delta += rec.OverageSpentUSD - prev
		} else {
			delta += rec.OverageSpentUSD
		}
		prev = rec.OverageSpentUSD
	}

	return delta
}

// fullCoverage reports whether snapshots covered [dayStart, dayEnd)
// without a gap longer than maxCoverageGap. For a day still in
// progress, coverage is only required up to the last snapshot seen.
func fullCoverage(dayRecords []poller.Record, dayStart, dayEnd, coverageStart, asOf time.Time) bool {
	if len(dayRecords) == 0 {
		return false
	}

	requiredFrom := dayStart
	if coverageStart.After(requiredFrom) {
		// Coverage began mid-day; the head of the day is unobserved.
		return false
	}

	requiredTo := dayEnd
	if asOf.Before(dayEnd) {
		requiredTo = asOf
	}

	if dayRecords[0].Timestamp.Sub(requiredFrom) > maxCoverageGap {
		return false
	}
	for i := 1; i < len(dayRecords); i++ {
		if dayRecords[i].Timestamp.Sub(dayRecords[i-1].Timestamp) > maxCoverageGap {
			return false
		}
	}
	return requiredTo.Sub(dayRecords[len(dayRecords)-1].Timestamp) <= maxCoverageGap
}
