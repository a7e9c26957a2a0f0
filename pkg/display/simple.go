package display

import (
	"fmt"
	"io"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/store"
)

// simpleFormatter renders plain key: value text.
type simpleFormatter struct {
	config Config
}

func (f *simpleFormatter) FormatDays(w io.Writer, days []store.DailySummary) error {
	for _, d := range days {
		_, err := fmt.Fprintf(w, "%s tokens=%d within_quota=%d overage=%d cost=%.4f sessions=%d confidence=%s\n",
			d.Date,
			d.Usage.TotalTokens(),
			d.WithinQuotaTokens,
			d.OverageTokens,
			d.CostUSD,
			d.SessionCount,
			d.Confidence)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *simpleFormatter) FormatRollup(w io.Writer, r store.Rollup) error {
	_, err := fmt.Fprintf(w, "%s..%s days=%d events=%d tokens=%d cost=%.4f within_quota=%d overage=%d overage_cost=%.4f sessions=%d cache_hit_ratio=%.2f\n",
		r.From, r.To,
		r.Days,
		r.EventCount,
		r.Usage.TotalTokens(),
		r.CostUSD,
		r.WithinQuotaTokens,
		r.OverageTokens,
		r.OverageCostUSD,
		r.SessionCount,
		r.CacheHitRatio)
	return err
}

func (f *simpleFormatter) FormatHealth(w io.Writer, h HealthReport) error {
	age := "never"
	if !h.LastSnapshot.IsZero() {
		age = h.SnapshotAge.Round(time.Second).String()
	}
	_, err := fmt.Fprintf(w, "state=%s daemon_running=%t snapshots=%d last_snapshot_age=%s\n",
		h.State, h.DaemonRunning, h.SnapshotCount, age)
	return err
}
