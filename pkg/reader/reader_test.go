package reader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/parser"
)

const eventLine = `{"type":"assistant","timestamp":"2025-06-15T10:30:00Z","cwd":"/p","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":10,"output_tokens":5}}}` + "\n"

func newTestReader(t *testing.T) (Reader, string) {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "session.jsonl")

	r := New(parser.New(logger.Noop()), NewMemoryPositionStore(), logger.Noop())
	return r, path
}

func appendLines(t *testing.T, path string, n int) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := f.WriteString(eventLine); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
}

func TestReadIncremental(t *testing.T) {
	r, path := newTestReader(t)

	appendLines(t, path, 2)
	records, err := r.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("first Read() returned %d records, want 2", len(records))
	}

	// Nothing appended: second read must see nothing.
	records, err = r.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("second Read() returned %d records, want 0", len(records))
	}

	appendLines(t, path, 3)
	records, err = r.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("third Read() returned %d records, want 3", len(records))
	}
}

func TestReadTruncatedFile(t *testing.T) {
	r, path := newTestReader(t)

	appendLines(t, path, 5)
	if _, err := r.Read(path); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// Truncate and rewrite with fewer lines, simulating log rotation.
	if err := os.WriteFile(path, []byte(eventLine), 0600); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}

	records, err := r.Read(path)
	if err != nil {
		t.Fatalf("Read() after truncation error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Read() after truncation returned %d records, want 1", len(records))
	}
	if records[0].Offset != 0 {
		t.Errorf("record Offset = %d, want 0 after reset", records[0].Offset)
	}
}

func TestReadMissingFile(t *testing.T) {
	r, path := newTestReader(t)

	_, err := r.Read(path)
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Read() error = %v, want ErrFileNotFound", err)
	}
}

func TestReadFromDoesNotAdvancePosition(t *testing.T) {
	r, path := newTestReader(t)

	appendLines(t, path, 2)

	records, offset, err := r.ReadFrom(path, 0)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ReadFrom() returned %d records, want 2", len(records))
	}
	if offset != int64(2*len(eventLine)) {
		t.Errorf("ReadFrom() offset = %d, want %d", offset, 2*len(eventLine))
	}

	// Read still sees everything: ReadFrom left the position untouched.
	records, err = r.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Read() returned %d records, want 2", len(records))
	}
}

func TestReadFromNegativeOffset(t *testing.T) {
	r, path := newTestReader(t)
	appendLines(t, path, 1)

	if _, _, err := r.ReadFrom(path, -1); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("ReadFrom(-1) error = %v, want ErrNegativeOffset", err)
	}
}

func TestReset(t *testing.T) {
	r, path := newTestReader(t)

	appendLines(t, path, 2)
	if _, err := r.Read(path); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if err := r.Reset(path); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	records, err := r.Read(path)
	if err != nil {
		t.Fatalf("Read() after Reset error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Read() after Reset returned %d records, want 2", len(records))
	}
}

func TestBoltPositionStore(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := bolt.Open(filepath.Join(tmpDir, "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ps, err := NewPositionStore(db)
	if err != nil {
		t.Fatalf("NewPositionStore() error = %v", err)
	}

	// Unknown path reads as zero.
	offset, err := ps.Get("/a/b.jsonl")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if offset != 0 {
		t.Errorf("Get() = %d, want 0", offset)
	}

	if err := ps.Set("/a/b.jsonl", 12345); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	offset, err = ps.Get("/a/b.jsonl")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if offset != 12345 {
		t.Errorf("Get() = %d, want 12345", offset)
	}

	if err := ps.Set("/a/b.jsonl", -1); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("Set(-1) error = %v, want ErrNegativeOffset", err)
	}

	if err := ps.Reset("/a/b.jsonl"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	offset, err = ps.Get("/a/b.jsonl")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if offset != 0 {
		t.Errorf("Get() after Reset = %d, want 0", offset)
	}
}

func TestBoltPositionStorePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	ps, err := NewPositionStore(db)
	if err != nil {
		t.Fatalf("NewPositionStore() error = %v", err)
	}
	if err := ps.Set("/a/b.jsonl", 999); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	db, err = bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	ps, err = NewPositionStore(db)
	if err != nil {
		t.Fatalf("NewPositionStore() error = %v", err)
	}
	offset, err := ps.Get("/a/b.jsonl")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if offset != 999 {
		t.Errorf("Get() after reopen = %d, want 999", offset)
	}
}
