package display

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/store"
)

// tableFormatter renders aligned tables.
type tableFormatter struct {
	config Config
}

// FormatDays implements Formatter.FormatDays.
func (f *tableFormatter) FormatDays(w io.Writer, days []store.DailySummary) error {
	if err := writeHeader(w, "Daily Usage"); err != nil {
		return err
	}

	header := []string{"Date", "Tokens", "Within Quota", "Overage", "Cost", "Sessions", "Confidence"}
	rows := make([][]string, len(days))
	for i, d := range days {
		rows[i] = []string{
			d.Date,
			formatTokens(d.Usage.TotalTokens()),
			formatTokens(d.WithinQuotaTokens),
			formatTokens(d.OverageTokens),
			formatUSD(d.CostUSD),
			fmt.Sprintf("%d", d.SessionCount),
			string(d.Confidence),
		}
	}

	return f.writeTable(w, header, rows)
}

// FormatRollup implements Formatter.FormatRollup.
func (f *tableFormatter) FormatRollup(w io.Writer, r store.Rollup) error {
	title := fmt.Sprintf("Usage %s to %s", r.From, r.To)
	if err := writeHeader(w, title); err != nil {
		return err
	}

	rows := [][]string{
		{"Days", fmt.Sprintf("%d", r.Days)},
		{"Events", formatTokens(r.EventCount)},
		{"Total Tokens", formatTokens(r.Usage.TotalTokens())},
		{"Input Tokens", formatTokens(r.Usage.InputTokens)},
		{"Output Tokens", formatTokens(r.Usage.OutputTokens)},
		{"Cache Writes", formatTokens(r.Usage.CacheCreationTokens)},
		{"Cache Reads", formatTokens(r.Usage.CacheReadTokens)},
		{"Cache Hit Ratio", fmt.Sprintf("%.2f", r.CacheHitRatio)},
		{"Cost", formatUSD(r.CostUSD)},
		{"Within Quota", formatTokens(r.WithinQuotaTokens)},
		{"Overage Tokens", formatTokens(r.OverageTokens)},
		{"Overage Cost", formatUSD(r.OverageCostUSD)},
		{"Sessions", fmt.Sprintf("%d", r.SessionCount)},
	}
	if r.UnpricedEvents > 0 {
		rows = append(rows, []string{"Unpriced Events", formatTokens(r.UnpricedEvents)})
	}

	if err := f.writeTable(w, []string{"Metric", "Value"}, rows); err != nil {
		return err
	}

	if f.config.ShowModels && len(r.ByModel) > 0 {
		if err := writeHeader(w, "By Model"); err != nil {
			return err
		}

		models := make([]string, 0, len(r.ByModel))
		for m := range r.ByModel {
			models = append(models, m)
		}
		sort.Strings(models)

		rows := make([][]string, len(models))
		for i, m := range models {
			mu := r.ByModel[m]
			rows[i] = []string{
				truncateCell(m, 40),
				formatTokens(mu.EventCount),
				formatTokens(mu.Usage.TotalTokens()),
				formatUSD(mu.CostUSD),
			}
		}
		return f.writeTable(w, []string{"Model", "Events", "Tokens", "Cost"}, rows)
	}

	return nil
}

// FormatHealth implements Formatter.FormatHealth.
func (f *tableFormatter) FormatHealth(w io.Writer, h HealthReport) error {
	if err := writeHeader(w, "Collection Health"); err != nil {
		return err
	}

	rows := [][]string{
		{"State", h.State},
		{"Daemon Running", fmt.Sprintf("%t", h.DaemonRunning)},
		{"Snapshots", fmt.Sprintf("%d", h.SnapshotCount)},
	}
	if !h.LastSnapshot.IsZero() {
		rows = append(rows,
			[]string{"Last Snapshot", h.LastSnapshot.Format(time.RFC3339)},
			[]string{"Snapshot Age", h.SnapshotAge.Round(time.Second).String()},
		)
	}
	if !h.CoverageStart.IsZero() {
		rows = append(rows, []string{"Coverage Since", h.CoverageStart.Format(time.RFC3339)})
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// writeHeader writes a section title with underline.
func writeHeader(w io.Writer, title string) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, strings.Repeat("=", len(title)))
	return err
}

// writeTable writes an aligned table with a separator row.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := writeRow(w, header, widths); err != nil {
		return err
	}

	separator := make([]string, len(header))
	for i, width := range widths {
		separator[i] = strings.Repeat("-", width)
	}
	if err := writeRow(w, separator, widths); err != nil {
		return err
	}

	for _, row := range rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	for i, cell := range cells {
		if i > 0 {
			if _, err := fmt.Fprint(w, "  "); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, fmt.Sprintf("%%-%ds", widths[i]), cell); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
