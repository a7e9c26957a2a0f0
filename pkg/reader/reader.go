// Package reader performs incremental, restartable reads of event log
// files. It remembers the byte offset reached in each file and resumes
// from there on the next read, so repeated invocations see each event
// exactly once. Truncated or rotated files are detected by offset
// regression and reread from the beginning.
package reader

import (
	"fmt"
	"os"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/parser"
)

const (
	// maxRetries is the number of attempts for transient read failures.
	maxRetries = 3

	// retryDelay is the pause between retry attempts.
	retryDelay = 50 * time.Millisecond
)

// Reader reads new token records from event log files.
type Reader interface {
	// Read parses records appended to path since the last Read,
	// advancing the persisted position on success.
	//
	// Returns:
	//   - New records in file order (empty if nothing was appended)
	//   - Error if the file cannot be read
	//
	// If the file shrank below the stored position (truncation or
	// rotation) the position resets to 0 and the whole file is reread;
	// downstream offset deduplication keeps the replay harmless.
	Read(path string) ([]parser.TokenRecord, error)

	// ReadFrom parses records starting at an explicit offset without
	// consulting or advancing the persisted position.
	ReadFrom(path string, offset int64) ([]parser.TokenRecord, int64, error)

	// Reset clears the persisted position for path.
	Reset(path string) error
}

// fileReader implements Reader.
type fileReader struct {
	parser    parser.Parser
	positions PositionStore
	logger    logger.Logger
}

// New creates a Reader that parses with p and persists positions in ps.
func New(p parser.Parser, ps PositionStore, log logger.Logger) Reader {
	return &fileReader{
		parser:    p,
		positions: ps,
		logger:    log,
	}
}

// Read implements Reader.Read.
func (r *fileReader) Read(path string) ([]parser.TokenRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	offset, err := r.positions.Get(path)
	if err != nil {
		return nil, err
	}

	if info.Size() < offset {
		r.logger.Warn("event file shrank, rereading from start",
			"path", path,
			"stored_offset", offset,
			"size", info.Size())
		offset = 0
		if err := r.positions.Reset(path); err != nil {
			return nil, err
		}
	}

	if info.Size() == offset {
		return nil, nil
	}

	records, newOffset, err := r.readWithRetry(path, offset)
	if err != nil {
		return nil, err
	}

	if newOffset != offset {
		if err := r.positions.Set(path, newOffset); err != nil {
			return records, err
		}
	}

	return records, nil
}

// ReadFrom implements Reader.ReadFrom.
func (r *fileReader) ReadFrom(path string, offset int64) ([]parser.TokenRecord, int64, error) {
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrNegativeOffset, offset)
	}
	return r.readWithRetry(path, offset)
}

// Reset implements Reader.Reset.
func (r *fileReader) Reset(path string) error {
	return r.positions.Reset(path)
}

// readWithRetry retries transient parse failures. A file being renamed
// away between stat and open, or contended by a writer, usually
// resolves within a few attempts.
func (r *fileReader) readWithRetry(path string, offset int64) ([]parser.TokenRecord, int64, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		records, newOffset, err := r.parser.ParseFile(path, offset)
		if err == nil {
			return records, newOffset, nil
		}

		lastErr = err
		if attempt < maxRetries {
			r.logger.Debug("read attempt failed, retrying",
				"path", path,
				"attempt", attempt,
				"error", err)
			time.Sleep(retryDelay)
		}
	}

	return nil, offset, fmt.Errorf("read failed after %d attempts: %w", maxRetries, lastErr)
}
