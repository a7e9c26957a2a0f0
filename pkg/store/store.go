package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/parser"
	"github.com/0xmhha/quota-monitor/pkg/pricing"
	"github.com/0xmhha/quota-monitor/pkg/window"
)

const schemaVersion = 1

var (
	dailyBucket     = []byte("daily_summaries")
	watermarkBucket = []byte("source_watermarks")
	metaBucket      = []byte("meta")

	schemaKey = []byte("schema_version")
)

// Store is the daily aggregation store.
type Store interface {
	// MergeUsage folds token records into their day summaries.
	// Records at or below a source's merge watermark are skipped, so
	// replaying a file is harmless. The watermark advances in the
	// same transaction as the summary writes.
	//
	// Records priced at an unknown model are counted and logged but
	// still contribute tokens; cost totals exclude them.
	MergeUsage(records []parser.TokenRecord) error

	// MergeClassification applies snapshot-derived day splits to the
	// matching summaries, creating summaries for days that have
	// classification but no merged events yet.
	MergeClassification(days []window.DayClassification) error

	// Summary returns the aggregate for one date (2006-01-02).
	// Returns ErrNotFound when the day has no data.
	Summary(date string) (*DailySummary, error)

	// Query returns summaries with from <= Date <= to, ascending.
	Query(from, to string) ([]DailySummary, error)

	// Rollup aggregates the summaries in range into one Rollup.
	Rollup(from, to string) (Rollup, error)

	// Rotate deletes summaries older than the retention horizon and
	// returns how many days were removed.
	Rotate(retentionDays int, now time.Time) (int, error)
}

// boltStore implements Store on a shared bbolt handle. The handle is
// owned by the caller; boltStore never closes it. bbolt serializes
// writers internally, and the mutex keeps our read-modify-write merge
// cycles from interleaving.
type boltStore struct {
	db      *bolt.DB
	pricing pricing.Table
	logger  logger.Logger

	mu sync.Mutex
}

// New creates a Store on db, creating buckets and verifying schema
// version and summary integrity. A corrupt or incompatible database
// yields an error; the store never silently rebuilds or serves
// suspect aggregates.
func New(db *bolt.DB, table pricing.Table, log logger.Logger) (Store, error) {
	if db.IsReadOnly() {
		// Read-only handles (report paths) skip bucket creation and
		// verify whatever is present.
		err := db.View(func(tx *bolt.Tx) error {
			meta := tx.Bucket(metaBucket)
			if meta == nil {
				return nil
			}
			stored := meta.Get(schemaKey)
			if stored == nil {
				return nil
			}
			if len(stored) != 8 {
				return fmt.Errorf("%w: malformed schema version", ErrStoreCorruption)
			}
			if got := binary.BigEndian.Uint64(stored); got != schemaVersion {
				return fmt.Errorf("%w: database is v%d, binary expects v%d",
					ErrSchemaMismatch, got, schemaVersion)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		s := &boltStore{db: db, pricing: table, logger: log}
		if err := s.verify(); err != nil {
			return nil, err
		}
		return s, nil
	}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{dailyBucket, watermarkBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(metaBucket)
		stored := meta.Get(schemaKey)
		if stored == nil {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], schemaVersion)
			return meta.Put(schemaKey, v[:])
		}
		if len(stored) != 8 {
			return fmt.Errorf("%w: malformed schema version", ErrStoreCorruption)
		}
		if got := binary.BigEndian.Uint64(stored); got != schemaVersion {
			return fmt.Errorf("%w: database is v%d, binary expects v%d",
				ErrSchemaMismatch, got, schemaVersion)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &boltStore{db: db, pricing: table, logger: log}
	if err := s.verify(); err != nil {
		return nil, err
	}
	return s, nil
}

// verify scans stored summaries for decodability and key/date
// agreement. Fail-fast beats aggregating on top of garbage.
func (s *boltStore) verify() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dailyBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sum DailySummary
			if err := json.Unmarshal(v, &sum); err != nil {
				return fmt.Errorf("%w: undecodable summary at key %q: %v",
					ErrStoreCorruption, k, err)
			}
			if sum.Date != string(k) {
				return fmt.Errorf("%w: summary date %q under key %q",
					ErrStoreCorruption, sum.Date, k)
			}
			if _, err := time.Parse(DateFormat, string(k)); err != nil {
				return fmt.Errorf("%w: malformed date key %q", ErrStoreCorruption, k)
			}
		}
		return nil
	})
}

// MergeUsage implements Store.MergeUsage.
func (s *boltStore) MergeUsage(records []parser.TokenRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := 0
	skipped := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		daily := tx.Bucket(dailyBucket)
		marks := tx.Bucket(watermarkBucket)

		// Watermarks hold the first unmerged offset per source.
		dirty := make(map[string]int64)
		summaries := make(map[string]*DailySummary)

		for _, rec := range records {
			mark, ok := dirty[rec.Source]
			if !ok {
				mark = getWatermark(marks, rec.Source)
			}
			if rec.Offset < mark {
				skipped++
				continue
			}

			date := rec.Timestamp.UTC().Format(DateFormat)
			sum, ok := summaries[date]
			if !ok {
				loaded, err := loadSummary(daily, date)
				if err != nil {
					return err
				}
				sum = loaded
				summaries[date] = sum
			}

			s.applyRecord(sum, rec)
			dirty[rec.Source] = rec.Offset + 1
			merged++
		}

		for date, sum := range summaries {
			if err := putSummary(daily, date, sum); err != nil {
				return err
			}
		}
		for source, mark := range dirty {
			if err := putWatermark(marks, source, mark); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge usage: %w", err)
	}

	if merged > 0 || skipped > 0 {
		s.logger.Debug("usage merged", "merged", merged, "skipped", skipped)
	}
	return nil
}

// applyRecord folds one record into a day summary.
func (s *boltStore) applyRecord(sum *DailySummary, rec parser.TokenRecord) {
	sum.Usage = sum.Usage.Add(rec.Usage)
	sum.EventCount++

	cost, err := s.pricing.Cost(rec.Model, rec.Usage)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownModel) {
			sum.UnpricedEvents++
			s.logger.Error("no pricing for model, cost excluded from totals",
				"model", rec.Model,
				"source", rec.Source,
				"offset", rec.Offset)
		}
		cost = 0
	}
	sum.CostUSD += cost

	if sum.ByModel == nil {
		sum.ByModel = make(map[string]ModelUsage)
	}
	mu := sum.ByModel[rec.Model]
	mu.Usage = mu.Usage.Add(rec.Usage)
	mu.CostUSD += cost
	mu.EventCount++
	sum.ByModel[rec.Model] = mu

	if rec.Project != "" {
		if sum.ByProject == nil {
			sum.ByProject = make(map[string]ModelUsage)
		}
		pu := sum.ByProject[rec.Project]
		pu.Usage = pu.Usage.Add(rec.Usage)
		pu.CostUSD += cost
		pu.EventCount++
		sum.ByProject[rec.Project] = pu
	}
}

// MergeClassification implements Store.MergeClassification.
func (s *boltStore) MergeClassification(days []window.DayClassification) error {
	if len(days) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		daily := tx.Bucket(dailyBucket)

		for _, dc := range days {
			sum, err := loadSummary(daily, dc.Date)
			if err != nil {
				return err
			}

			// A reclassification never downgrades an exact day and
			// never zeroes an existing split with an unclassified one.
			if dc.Confidence == window.ConfidenceUnclassified &&
				sum.Confidence != "" && sum.Confidence != window.ConfidenceUnclassified {
				continue
			}

			sum.WithinQuotaTokens = dc.WithinQuotaTokens
			sum.OverageTokens = dc.OverageTokens
			sum.OverageCostUSD = dc.OverageCostUSD
			sum.SessionCount = dc.SessionCount
			sum.Confidence = dc.Confidence

			if err := putSummary(daily, dc.Date, sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge classification: %w", err)
	}
	return nil
}

// Summary implements Store.Summary.
func (s *boltStore) Summary(date string) (*DailySummary, error) {
	var sum *DailySummary

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dailyBucket)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, date)
		}
		v := b.Get([]byte(date))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, date)
		}
		sum = &DailySummary{}
		return json.Unmarshal(v, sum)
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Query implements Store.Query.
func (s *boltStore) Query(from, to string) ([]DailySummary, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	var out []DailySummary
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dailyBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek([]byte(from)); k != nil && string(k) <= to; k, v = c.Next() {
			var sum DailySummary
			if err := json.Unmarshal(v, &sum); err != nil {
				return fmt.Errorf("%w: undecodable summary at %q: %v", ErrStoreCorruption, k, err)
			}
			out = append(out, sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rollup implements Store.Rollup.
func (s *boltStore) Rollup(from, to string) (Rollup, error) {
	days, err := s.Query(from, to)
	if err != nil {
		return Rollup{}, err
	}

	r := Rollup{From: from, To: to, Days: len(days)}
	byModel := make(map[string]ModelUsage)

	for _, d := range days {
		r.Usage = r.Usage.Add(d.Usage)
		r.CostUSD += d.CostUSD
		r.EventCount += d.EventCount
		r.UnpricedEvents += d.UnpricedEvents
		r.WithinQuotaTokens += d.WithinQuotaTokens
		r.OverageTokens += d.OverageTokens
		r.OverageCostUSD += d.OverageCostUSD
		r.SessionCount += d.SessionCount

		for model, mu := range d.ByModel {
			agg := byModel[model]
			agg.Usage = agg.Usage.Add(mu.Usage)
			agg.CostUSD += mu.CostUSD
			agg.EventCount += mu.EventCount
			byModel[model] = agg
		}
	}

	if len(byModel) > 0 {
		r.ByModel = byModel
	}
	r.CacheHitRatio = CacheHitRatio(r.Usage)

	return r, nil
}

// Rotate implements Store.Rotate.
func (s *boltStore) Rotate(retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrInvalidRange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := now.UTC().AddDate(0, 0, -retentionDays).Format(DateFormat)
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(dailyBucket).Cursor()
		for k, _ := c.First(); k != nil && string(k) < horizon; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to rotate summaries: %w", err)
	}

	if removed > 0 {
		s.logger.Info("rotated old summaries",
			"removed_days", removed,
			"horizon", horizon)
	}
	return removed, nil
}

func validateRange(from, to string) error {
	f, err := time.Parse(DateFormat, from)
	if err != nil {
		return fmt.Errorf("%w: bad from date %q", ErrInvalidRange, from)
	}
	t, err := time.Parse(DateFormat, to)
	if err != nil {
		return fmt.Errorf("%w: bad to date %q", ErrInvalidRange, to)
	}
	if t.Before(f) {
		return fmt.Errorf("%w: %s after %s", ErrInvalidRange, from, to)
	}
	return nil
}

func loadSummary(b *bolt.Bucket, date string) (*DailySummary, error) {
	v := b.Get([]byte(date))
	if v == nil {
		return &DailySummary{Date: date, Confidence: window.ConfidenceUnclassified}, nil
	}
	var sum DailySummary
	if err := json.Unmarshal(v, &sum); err != nil {
		return nil, fmt.Errorf("%w: undecodable summary at %q: %v", ErrStoreCorruption, date, err)
	}
	return &sum, nil
}

func putSummary(b *bolt.Bucket, date string, sum *DailySummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary %s: %w", date, err)
	}
	return b.Put([]byte(date), data)
}

func getWatermark(b *bolt.Bucket, source string) int64 {
	v := b.Get([]byte(source))
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v)) // #nosec G115
}

func putWatermark(b *bolt.Bucket, source string, mark int64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(mark))
	return b.Put([]byte(source), v[:])
}
