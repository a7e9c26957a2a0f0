package reader

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// positionsBucket stores file path -> last-read byte offset.
var positionsBucket = []byte("read_positions")

// PositionStore persists per-file read offsets so that reads resume
// where the previous run stopped.
type PositionStore interface {
	// Get returns the stored offset for path, or 0 if none is stored.
	Get(path string) (int64, error)

	// Set stores the offset for path.
	Set(path string, offset int64) error

	// Reset removes the stored offset for path.
	Reset(path string) error
}

// boltPositionStore persists offsets in a bbolt bucket. The database
// handle is shared with the summary store; this type never closes it.
type boltPositionStore struct {
	db *bolt.DB
}

// NewPositionStore creates a PositionStore backed by the given
// database handle.
func NewPositionStore(db *bolt.DB) (PositionStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(positionsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create positions bucket: %w", err)
	}

	return &boltPositionStore{db: db}, nil
}

// Get implements PositionStore.Get.
func (s *boltPositionStore) Get(path string) (int64, error) {
	var offset int64

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(positionsBucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(path))
		if len(v) == 8 {
			offset = int64(binary.BigEndian.Uint64(v)) // #nosec G115
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read position for %s: %w", path, err)
	}

	return offset, nil
}

// Set implements PositionStore.Set.
func (s *boltPositionStore) Set(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeOffset, offset)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(positionsBucket)
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(offset))
		return b.Put([]byte(path), v[:])
	})
	if err != nil {
		return fmt.Errorf("failed to store position for %s: %w", path, err)
	}

	return nil
}

// Reset implements PositionStore.Reset.
func (s *boltPositionStore) Reset(path string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(positionsBucket)
		return b.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("failed to reset position for %s: %w", path, err)
	}

	return nil
}

// memoryPositionStore keeps offsets in memory. Useful for tests and
// one-shot scans that must not disturb persisted watermarks.
type memoryPositionStore struct {
	mu        sync.RWMutex
	positions map[string]int64
}

// NewMemoryPositionStore creates a PositionStore that does not persist
// across process restarts.
func NewMemoryPositionStore() PositionStore {
	return &memoryPositionStore{positions: make(map[string]int64)}
}

func (s *memoryPositionStore) Get(path string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[path], nil
}

func (s *memoryPositionStore) Set(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeOffset, offset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[path] = offset
	return nil
}

func (s *memoryPositionStore) Reset(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, path)
	return nil
}
