package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/parser"
	"github.com/0xmhha/quota-monitor/pkg/store"
	"github.com/0xmhha/quota-monitor/pkg/window"
)

func sampleDays() []store.DailySummary {
	return []store.DailySummary{
		{
			Date:              "2025-06-15",
			Usage:             parser.Usage{InputTokens: 1200, OutputTokens: 3400},
			CostUSD:           1.25,
			EventCount:        12,
			WithinQuotaTokens: 4000,
			OverageTokens:     600,
			SessionCount:      2,
			Confidence:        window.ConfidenceApproximate,
		},
		{
			Date:       "2025-06-16",
			Usage:      parser.Usage{InputTokens: 100},
			EventCount: 1,
			Confidence: window.ConfidenceUnclassified,
		},
	}
}

func sampleRollup() store.Rollup {
	return store.Rollup{
		From:          "2025-06-15",
		To:            "2025-06-16",
		Days:          2,
		Usage:         parser.Usage{InputTokens: 1300, OutputTokens: 3400, CacheCreationTokens: 100, CacheReadTokens: 900},
		CostUSD:       1.25,
		EventCount:    13,
		CacheHitRatio: 9.0,
		ByModel: map[string]store.ModelUsage{
			"claude-sonnet-4-5": {Usage: parser.Usage{InputTokens: 1300}, CostUSD: 1.25, EventCount: 13},
		},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{name: "default is table", config: Config{}, want: "*display.tableFormatter"},
		{name: "table", config: Config{Format: FormatTable}, want: "*display.tableFormatter"},
		{name: "json", config: Config{Format: FormatJSON}, want: "*display.jsonFormatter"},
		{name: "simple", config: Config{Format: FormatSimple}, want: "*display.simpleFormatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.config)
			if got := fmt.Sprintf("%T", f); got != tt.want {
				t.Errorf("New() type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTableFormatDays(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 120})

	if err := f.FormatDays(&buf, sampleDays()); err != nil {
		t.Fatalf("FormatDays() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2025-06-15", "2025-06-16", "4,600", "approximate", "unclassified"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatRollup(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, ShowModels: true, Width: 120})

	if err := f.FormatRollup(&buf, sampleRollup()); err != nil {
		t.Fatalf("FormatRollup() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Cache Hit Ratio", "9.00", "claude-sonnet-4-5", "By Model", "$1.2500"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatDaysEmpty(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 120})

	if err := f.FormatDays(&buf, nil); err != nil {
		t.Fatalf("FormatDays() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("output missing empty marker:\n%s", buf.String())
	}
}

func TestJSONFormatRollup(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatJSON, ShowModels: true})

	if err := f.FormatRollup(&buf, sampleRollup()); err != nil {
		t.Fatalf("FormatRollup() error = %v", err)
	}

	var decoded store.Rollup
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.EventCount != 13 {
		t.Errorf("EventCount = %d, want 13", decoded.EventCount)
	}
	if len(decoded.ByModel) != 1 {
		t.Errorf("ByModel size = %d, want 1", len(decoded.ByModel))
	}
}

func TestJSONFormatHealth(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatJSON})

	h := HealthReport{
		State:         "healthy",
		LastSnapshot:  time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		SnapshotAge:   30 * time.Second,
		SnapshotCount: 42,
		DaemonRunning: true,
	}
	if err := f.FormatHealth(&buf, h); err != nil {
		t.Fatalf("FormatHealth() error = %v", err)
	}

	var decoded HealthReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.SnapshotCount != 42 || !decoded.DaemonRunning {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestSimpleFormatDays(t *testing.T) {
	var buf bytes.Buffer
	f := New(Config{Format: FormatSimple})

	if err := f.FormatDays(&buf, sampleDays()); err != nil {
		t.Fatalf("FormatDays() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output has %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "within_quota=4000") {
		t.Errorf("line missing split: %q", lines[0])
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatTokens(tt.in); got != tt.want {
			t.Errorf("formatTokens(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateCell(t *testing.T) {
	if got := truncateCell("claude-sonnet-4-5-20250929", 10); got != "claude-..." {
		t.Errorf("truncateCell() = %q", got)
	}
	if got := truncateCell("short", 10); got != "short" {
		t.Errorf("truncateCell() = %q, want unchanged", got)
	}
}
