package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/quota-monitor/pkg/store"
)

// jsonFormatter renders JSON for scripting.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) FormatDays(w io.Writer, days []store.DailySummary) error {
	return writeJSON(w, days)
}

func (f *jsonFormatter) FormatRollup(w io.Writer, r store.Rollup) error {
	if !f.config.ShowModels {
		r.ByModel = nil
	}
	return writeJSON(w, r)
}

func (f *jsonFormatter) FormatHealth(w io.Writer, h HealthReport) error {
	return writeJSON(w, h)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
