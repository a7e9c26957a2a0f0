package window

import (
	"sort"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/poller"
)

// Windows recovers session windows from a snapshot sequence.
//
// Consecutive snapshots reporting (nearly) the same reset time belong
// to one window. A reset time that moves by more than tolerance in
// either direction starts a new window: forward movement is the normal
// expiry-and-renew cycle, and backward movement means the provider
// restarted metering, which is likewise a fresh window rather than an
// error. Records are processed in timestamp order regardless of input
// order.
//
// Pass tolerance <= 0 for DefaultResetTolerance.
func Windows(records []poller.Record, tolerance time.Duration) []SessionWindow {
	if tolerance <= 0 {
		tolerance = DefaultResetTolerance
	}
	if len(records) == 0 {
		return nil
	}

	sorted := make([]poller.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var windows []SessionWindow
	var current *SessionWindow

	for _, rec := range sorted {
		if rec.SessionResetsAt.IsZero() {
			continue
		}

		if current != nil {
			drift := rec.SessionResetsAt.Sub(current.End)
			if drift < 0 {
				drift = -drift
			}
			if drift <= tolerance {
				current.Snapshots++
				if rec.SessionPercentUsed > current.PeakPercentUsed {
					current.PeakPercentUsed = rec.SessionPercentUsed
				}
				// Keep the latest reported reset; jitter inside the
				// tolerance refines the boundary rather than
				// splitting the window.
				current.End = rec.SessionResetsAt
				current.Start = rec.SessionResetsAt.Add(-Duration)
				continue
			}

			windows = append(windows, *current)
		}

		current = &SessionWindow{
			Start:           rec.SessionResetsAt.Add(-Duration),
			End:             rec.SessionResetsAt,
			PeakPercentUsed: rec.SessionPercentUsed,
			Snapshots:       1,
		}
	}

	if current != nil {
		windows = append(windows, *current)
	}

	return windows
}
