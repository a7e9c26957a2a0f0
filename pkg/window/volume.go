package window

import (
	"sort"
	"time"
)

// HourlyVolume accumulates token counts into UTC hour buckets. It is
// the bridge between event log records, which carry precise
// timestamps, and day-level classification: bucketing by hour keeps
// the accumulator small while still splitting volume correctly at
// midnight boundaries.
//
// Not safe for concurrent use; callers serialize access.
type HourlyVolume map[time.Time]int64

// Add credits tokens to the hour bucket containing ts.
func (v HourlyVolume) Add(ts time.Time, tokens int64) {
	v[ts.UTC().Truncate(time.Hour)] += tokens
}

// DayTotal returns the token volume for the UTC day containing day.
func (v HourlyVolume) DayTotal(day time.Time) int64 {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var total int64
	for hour, tokens := range v {
		if !hour.Before(start) && hour.Before(end) {
			total += tokens
		}
	}
	return total
}

// Days returns the distinct UTC days with nonzero volume, ascending.
func (v HourlyVolume) Days() []time.Time {
	seen := make(map[time.Time]struct{})
	for hour, tokens := range v {
		if tokens == 0 {
			continue
		}
		seen[hour.Truncate(24*time.Hour)] = struct{}{}
	}

	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
