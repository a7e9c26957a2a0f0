package poller

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

// Log is an append-only JSONL journal of snapshot records. Every
// append is synced to disk before returning so a crash never loses an
// acknowledged snapshot.
type Log struct {
	path   string
	logger logger.Logger

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenLog opens (creating if needed) the snapshot log at path.
func OpenLog(path string, log logger.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot log: %w", err)
	}

	return &Log{path: path, logger: log, file: f}, nil
}

// Append writes one record and syncs it to disk.
func (l *Log) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to append snapshot record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot log: %w", err)
	}

	return nil
}

// Load reads all records from the log in append order. Malformed
// lines (for example a torn final write from a crash) are logged and
// skipped.
func (l *Log) Load() ([]Record, error) {
	f, err := os.Open(l.path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot log: %w", err)
	}
	defer f.Close() // nolint:errcheck

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Warn("skipping malformed snapshot record",
				"path", l.path,
				"line", lineNum,
				"error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read snapshot log: %w", err)
	}

	return records, nil
}

// LoadSince returns records with Timestamp at or after cutoff.
func (l *Log) LoadSince(cutoff time.Time) ([]Record, error) {
	all, err := l.Load()
	if err != nil {
		return nil, err
	}

	kept := all[:0]
	for _, rec := range all {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// Rotate rewrites the log keeping only records at or after cutoff.
// The rewrite goes through a temp file and rename so readers never see
// a partially written log.
func (l *Log) Rotate(cutoff time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}

	kept, err := l.LoadSince(cutoff)
	if err != nil {
		return err
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to create rotation temp file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range kept {
		data, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()           // nolint:errcheck
			os.Remove(tmpPath)    // nolint:errcheck
			return fmt.Errorf("failed to marshal record during rotation: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()        // nolint:errcheck
			os.Remove(tmpPath) // nolint:errcheck
			return fmt.Errorf("failed to write rotation temp file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()        // nolint:errcheck
		os.Remove(tmpPath) // nolint:errcheck
		return fmt.Errorf("failed to flush rotation temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        // nolint:errcheck
		os.Remove(tmpPath) // nolint:errcheck
		return fmt.Errorf("failed to sync rotation temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close rotation temp file: %w", err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot log for rotation: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("failed to replace snapshot log: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0600) // nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to reopen snapshot log: %w", err)
	}
	l.file = f

	l.logger.Info("snapshot log rotated",
		"path", l.path,
		"kept", len(kept),
		"cutoff", cutoff)
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
