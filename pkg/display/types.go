// Package display provides output formatting for usage reports.
//
// It supports table, JSON and simple text formats for daily summaries,
// range rollups and collection health.
package display

import (
	"io"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/store"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays data in aligned tables.
	FormatTable Format = "table"

	// FormatJSON displays data as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays data as plain key: value text.
	FormatSimple Format = "simple"
)

// HealthReport summarizes collection health for the health command.
type HealthReport struct {
	// State is the poller state derived from snapshot recency.
	State string `json:"state"`

	// LastSnapshot is the timestamp of the newest snapshot record.
	LastSnapshot time.Time `json:"last_snapshot,omitempty"`

	// SnapshotAge is how stale the newest snapshot is.
	SnapshotAge time.Duration `json:"snapshot_age,omitempty"`

	// CoverageStart is the timestamp of the oldest snapshot record;
	// days before it cannot be classified.
	CoverageStart time.Time `json:"coverage_start,omitempty"`

	// SnapshotCount is the number of records in the snapshot log.
	SnapshotCount int `json:"snapshot_count"`

	// DaemonRunning reports whether a daemon lock is held.
	DaemonRunning bool `json:"daemon_running"`
}

// Formatter renders usage data for humans or machines.
type Formatter interface {
	// FormatDays renders per-day summaries.
	FormatDays(w io.Writer, days []store.DailySummary) error

	// FormatRollup renders a range aggregate.
	FormatRollup(w io.Writer, r store.Rollup) error

	// FormatHealth renders collection health.
	FormatHealth(w io.Writer, h HealthReport) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format. Default: FormatTable.
	Format Format

	// ShowModels enables the per-model breakdown in rollups.
	ShowModels bool

	// Width overrides the detected terminal width. Zero means detect.
	Width int
}
