package parser

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

const (
	// MaxFileSize is the maximum allowed JSONL file size (100MB).
	// Files larger than this will be rejected to prevent memory exhaustion.
	MaxFileSize = 100 * 1024 * 1024

	// MaxLineLength is the maximum allowed line length (1MB).
	MaxLineLength = 1024 * 1024
)

// Parser provides methods for parsing usage event JSONL files.
type Parser interface {
	// ParseFile reads a JSONL file from the given byte offset and
	// returns the token records found along with the new offset.
	//
	// Parameters:
	//   - path: Path to the JSONL file
	//   - offset: Byte offset to start reading from (0 for beginning)
	//
	// Returns:
	//   - Slice of token records, each carrying its own (Source, Offset)
	//   - New offset position after reading
	//   - Error if the file cannot be read or is too large
	//
	// Malformed lines are logged and skipped rather than causing
	// failure. A partial trailing line (no terminating newline, as
	// produced by a writer mid-append) is not consumed: the returned
	// offset points at its start so the next read picks it up whole.
	//
	// Thread-safety: safe to call concurrently with different files.
	ParseFile(path string, offset int64) ([]TokenRecord, int64, error)

	// ParseLine parses a single JSONL line into a TokenRecord.
	//
	// Returns ErrNotUsageEvent for well-formed lines that carry no
	// token usage, ErrMalformedLine for invalid JSON, or a validation
	// error. The caller fills in Source and Offset.
	//
	// Thread-safety: this method is thread-safe.
	ParseLine(line string) (*TokenRecord, error)
}

// rawEvent mirrors the wire shape of one event log line. Unrecognized
// fields are ignored by json.Unmarshal.
type rawEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	CWD       string `json:"cwd"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Message   struct {
		Model string `json:"model"`
		Usage *Usage `json:"usage"`
	} `json:"message"`
}

// jsonlParser implements the Parser interface.
type jsonlParser struct {
	logger logger.Logger
}

// New creates a new Parser instance.
func New(log logger.Logger) Parser {
	return &jsonlParser{logger: log}
}

// ParseFile implements Parser.ParseFile.
func (p *jsonlParser) ParseFile(path string, offset int64) ([]TokenRecord, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Size() > MaxFileSize {
		return nil, 0, fmt.Errorf("%w: size=%d, max=%d",
			ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	// #nosec G304: path is validated by caller
	f, err := os.Open(path) // nolint:gosec
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			p.logger.Warn("failed to close event file", "path", path, "error", closeErr)
		}
	}()

	if offset > 0 {
		if _, seekErr := f.Seek(offset, io.SeekStart); seekErr != nil {
			return nil, 0, fmt.Errorf("failed to seek to offset %d: %w", offset, seekErr)
		}
	}

	records := make([]TokenRecord, 0, 100)
	r := bufio.NewReaderSize(f, 64*1024)

	pos := offset
	lineNum := 0
	skipped := 0

	for {
		line, readErr := readLine(r)
		if errors.Is(readErr, ErrLineTooLong) {
			// An oversized line is skipped like any other malformed
			// line; aborting here would wedge the file forever. The
			// rest of the line is drained and consumed: it can only
			// keep growing past the limit, so there is no point
			// leaving it for a later pass.
			lineNum++
			skipped++
			consumed := int64(len(line))
			var drainErr error
			if !strings.HasSuffix(line, "\n") {
				var n int64
				n, drainErr = drainLine(r)
				consumed += n
				if drainErr != nil && drainErr != io.EOF {
					return records, pos, fmt.Errorf("read error at line %d: %w", lineNum, drainErr)
				}
			}
			p.logger.Warn("skipping oversized event line",
				"path", path,
				"line", lineNum,
				"offset", pos,
				"limit", MaxLineLength)
			pos += consumed
			if drainErr == io.EOF {
				break
			}
			continue
		}
		if readErr == io.EOF && !strings.HasSuffix(line, "\n") {
			// Partial trailing line: leave it for the next pass.
			break
		}
		if readErr != nil && readErr != io.EOF {
			return records, pos, fmt.Errorf("read error at line %d: %w", lineNum+1, readErr)
		}

		lineNum++
		lineStart := pos
		pos += int64(len(line))

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if readErr == io.EOF {
				break
			}
			continue
		}

		rec, parseErr := p.ParseLine(trimmed)
		if parseErr != nil {
			if !errors.Is(parseErr, ErrNotUsageEvent) {
				skipped++
				p.logger.Warn("skipping malformed event line",
					"path", path,
					"line", lineNum,
					"offset", lineStart,
					"error", parseErr)
			}
			if readErr == io.EOF {
				break
			}
			continue
		}

		rec.Source = path
		rec.Offset = lineStart
		records = append(records, *rec)

		if readErr == io.EOF {
			break
		}
	}

	if skipped > 0 {
		p.logger.Warn("event file contained malformed lines",
			"path", path,
			"skipped", skipped)
	}

	return records, pos, nil
}

// readLine reads up to and including the next newline, enforcing the
// per-line size limit.
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder

	for {
		chunk, err := r.ReadString('\n')
		sb.WriteString(chunk)

		if sb.Len() > MaxLineLength {
			return sb.String(), fmt.Errorf("%w: over %d bytes", ErrLineTooLong, MaxLineLength)
		}

		if err != nil || strings.HasSuffix(chunk, "\n") {
			return sb.String(), err
		}
	}
}

// drainLine discards input up to and including the next newline and
// returns the number of bytes discarded.
func drainLine(r *bufio.Reader) (int64, error) {
	var n int64
	for {
		chunk, err := r.ReadString('\n')
		n += int64(len(chunk))
		if err != nil || strings.HasSuffix(chunk, "\n") {
			return n, err
		}
	}
}

// ParseLine implements Parser.ParseLine.
func (p *jsonlParser) ParseLine(line string) (*TokenRecord, error) {
	if line == "" {
		return nil, fmt.Errorf("%w: empty line", ErrMalformedLine)
	}

	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	// Only assistant turns carry token usage; everything else in the
	// log is a valid non-usage event.
	if raw.Type != "assistant" || raw.Message.Usage == nil {
		return nil, ErrNotUsageEvent
	}

	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLine, raw.Timestamp)
	}

	rec := TokenRecord{
		Timestamp: ts,
		Model:     raw.Message.Model,
		Usage:     *raw.Message.Usage,
		Project:   raw.CWD,
		RequestID: raw.RequestID,
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &rec, nil
}
