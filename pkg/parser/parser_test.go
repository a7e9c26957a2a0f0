package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

const validLine = `{"type":"assistant","timestamp":"2025-06-15T10:30:00Z","cwd":"/home/user/project","requestId":"req_001","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":20,"cache_read_input_tokens":500}}}`

func newTestParser() Parser {
	return New(logger.Noop())
}

func TestParseLine(t *testing.T) {
	p := newTestParser()

	rec, err := p.ParseLine(validLine)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}

	if rec.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want claude-sonnet-4-5", rec.Model)
	}
	if rec.Project != "/home/user/project" {
		t.Errorf("Project = %q, want /home/user/project", rec.Project)
	}
	if rec.RequestID != "req_001" {
		t.Errorf("RequestID = %q, want req_001", rec.RequestID)
	}

	want := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, want)
	}

	if rec.Usage.InputTokens != 100 || rec.Usage.OutputTokens != 50 {
		t.Errorf("Usage = %+v, want input=100 output=50", rec.Usage)
	}
	if rec.Usage.CacheCreationTokens != 20 || rec.Usage.CacheReadTokens != 500 {
		t.Errorf("Usage cache = %+v, want creation=20 read=500", rec.Usage)
	}
	if rec.Usage.TotalTokens() != 670 {
		t.Errorf("TotalTokens() = %d, want 670", rec.Usage.TotalTokens())
	}
}

func TestParseLineErrors(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{
			name:    "empty line",
			line:    "",
			wantErr: ErrMalformedLine,
		},
		{
			name:    "invalid JSON",
			line:    `{"type":"assistant","message":`,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "user turn",
			line:    `{"type":"user","timestamp":"2025-06-15T10:30:00Z","message":{"content":"hello"}}`,
			wantErr: ErrNotUsageEvent,
		},
		{
			name:    "assistant turn without usage",
			line:    `{"type":"assistant","timestamp":"2025-06-15T10:30:00Z","message":{"model":"claude-sonnet-4-5"}}`,
			wantErr: ErrNotUsageEvent,
		},
		{
			name:    "summary event",
			line:    `{"type":"summary","summary":"conversation summary"}`,
			wantErr: ErrNotUsageEvent,
		},
		{
			name:    "bad timestamp",
			line:    `{"type":"assistant","timestamp":"yesterday","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":1}}}`,
			wantErr: ErrMalformedLine,
		},
		{
			name:    "missing model",
			line:    `{"type":"assistant","timestamp":"2025-06-15T10:30:00Z","message":{"usage":{"input_tokens":1}}}`,
			wantErr: ErrInvalidModel,
		},
		{
			name:    "negative tokens",
			line:    `{"type":"assistant","timestamp":"2025-06-15T10:30:00Z","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":-5}}}`,
			wantErr: ErrNegativeTokenCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseLine(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseLine() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	content := validLine + "\n" +
		`{"type":"user","timestamp":"2025-06-15T10:31:00Z","message":{"content":"next"}}` + "\n" +
		`not json at all` + "\n" +
		validLine + "\n"

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("ParseFile() returned %d records, want 2", len(records))
	}

	if offset != int64(len(content)) {
		t.Errorf("offset = %d, want %d", offset, len(content))
	}

	for i, rec := range records {
		if rec.Source != path {
			t.Errorf("records[%d].Source = %q, want %q", i, rec.Source, path)
		}
	}

	// Offsets must point at the start of each record's line.
	if records[0].Offset != 0 {
		t.Errorf("records[0].Offset = %d, want 0", records[0].Offset)
	}
	wantSecond := int64(len(content) - len(validLine) - 1)
	if records[1].Offset != wantSecond {
		t.Errorf("records[1].Offset = %d, want %d", records[1].Offset, wantSecond)
	}
}

func TestParseFileOversizedLine(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	// A line over the limit must be skipped like any other malformed
	// line; records on either side of it still come back and the
	// offset covers the whole file so the scan never re-reads it.
	oversized := `{"type":"assistant","padding":"` + strings.Repeat("x", MaxLineLength) + `"}`
	content := validLine + "\n" + oversized + "\n" + validLine + "\n"

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("ParseFile() returned %d records, want 2", len(records))
	}
	if offset != int64(len(content)) {
		t.Errorf("offset = %d, want %d", offset, len(content))
	}

	wantSecond := int64(len(content) - len(validLine) - 1)
	if records[1].Offset != wantSecond {
		t.Errorf("records[1].Offset = %d, want %d", records[1].Offset, wantSecond)
	}

	// Resuming from the returned offset sees nothing new.
	records, newOffset, err := p.ParseFile(path, offset)
	if err != nil {
		t.Fatalf("ParseFile() resume error = %v", err)
	}
	if len(records) != 0 || newOffset != offset {
		t.Errorf("resume = %d records at offset %d, want 0 at %d", len(records), newOffset, offset)
	}
}

func TestParseFileOversizedTrailingLine(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	// Even without a terminating newline an oversized tail is consumed:
	// it can only grow further past the limit.
	content := validLine + "\n" + strings.Repeat("y", MaxLineLength+100)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ParseFile() returned %d records, want 1", len(records))
	}
	if offset != int64(len(content)) {
		t.Errorf("offset = %d, want %d", offset, len(content))
	}
}

func TestParseFileResume(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	content := validLine + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("first pass returned %d records, want 1", len(records))
	}

	// Append a second event, reread from the saved offset.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open file for append: %v", err)
	}
	if _, err := f.WriteString(validLine + "\n"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	records, newOffset, err := p.ParseFile(path, offset)
	if err != nil {
		t.Fatalf("ParseFile() resume error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("resume returned %d records, want 1", len(records))
	}
	if records[0].Offset != offset {
		t.Errorf("resumed record Offset = %d, want %d", records[0].Offset, offset)
	}
	if newOffset != 2*int64(len(content)) {
		t.Errorf("newOffset = %d, want %d", newOffset, 2*len(content))
	}
}

func TestParseFilePartialTrailingLine(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	// Second line lacks a terminating newline, simulating a writer
	// caught mid-append. It must not be consumed.
	partial := validLine[:40]
	content := validLine + "\n" + partial
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("ParseFile() returned %d records, want 1", len(records))
	}
	if want := int64(len(validLine) + 1); offset != want {
		t.Errorf("offset = %d, want %d (start of partial line)", offset, want)
	}

	// Complete the line; a reread from the offset must pick it up whole.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open file for append: %v", err)
	}
	if _, err := f.WriteString(validLine[40:] + "\n"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	records, _, err = p.ParseFile(path, offset)
	if err != nil {
		t.Fatalf("ParseFile() after completion error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ParseFile() after completion returned %d records, want 1", len(records))
	}
}

func TestParseFileEmptyAndMissing(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "empty.jsonl")

	if err := os.WriteFile(path, []byte(""), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, offset, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() on empty file error = %v", err)
	}
	if len(records) != 0 || offset != 0 {
		t.Errorf("empty file: records=%d offset=%d, want 0/0", len(records), offset)
	}

	if _, _, err := p.ParseFile(filepath.Join(tmpDir, "missing.jsonl"), 0); err == nil {
		t.Error("ParseFile() on missing file error = nil, want error")
	}
}

func TestParseFileBlankLines(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	content := "\n" + validLine + "\n\n" + validLine + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	p := newTestParser()
	records, _, err := p.ParseFile(path, 0)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("ParseFile() returned %d records, want 2", len(records))
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 1, OutputTokens: 2, CacheCreationTokens: 3, CacheReadTokens: 4}
	b := Usage{InputTokens: 10, OutputTokens: 20, CacheCreationTokens: 30, CacheReadTokens: 40}

	sum := a.Add(b)
	want := Usage{InputTokens: 11, OutputTokens: 22, CacheCreationTokens: 33, CacheReadTokens: 44}
	if sum != want {
		t.Errorf("Add() = %+v, want %+v", sum, want)
	}
}

func TestParseErrorTruncation(t *testing.T) {
	e := &ParseError{
		Line:   3,
		Offset: 128,
		Data:   strings.Repeat("x", 200),
		Err:    ErrMalformedLine,
	}

	msg := e.Error()
	if !strings.Contains(msg, "...") {
		t.Errorf("Error() = %q, want truncated data", msg)
	}
	if !errors.Is(e, ErrMalformedLine) {
		t.Error("errors.Is(e, ErrMalformedLine) = false, want true")
	}
}
