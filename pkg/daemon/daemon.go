// Package daemon wires the collection pipeline together: event log
// discovery and tailing, quota snapshot polling, session window
// reconstruction, and the daily aggregation store. One daemon instance
// runs per data directory, guarded by a lock file.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/quota-monitor/pkg/capture"
	"github.com/0xmhha/quota-monitor/pkg/config"
	"github.com/0xmhha/quota-monitor/pkg/discovery"
	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/parser"
	"github.com/0xmhha/quota-monitor/pkg/poller"
	"github.com/0xmhha/quota-monitor/pkg/pricing"
	"github.com/0xmhha/quota-monitor/pkg/reader"
	"github.com/0xmhha/quota-monitor/pkg/store"
	"github.com/0xmhha/quota-monitor/pkg/watcher"
	"github.com/0xmhha/quota-monitor/pkg/window"
)

const (
	// rotationInterval is how often retention is enforced.
	rotationInterval = 24 * time.Hour

	// dbOpenTimeout bounds waiting for the bbolt file lock.
	dbOpenTimeout = 5 * time.Second
)

// LockFileName is the lock file kept in the data directory.
const LockFileName = "daemon.lock"

// Daemon is the long-running collection process.
type Daemon struct {
	cfg    *config.Config
	logger logger.Logger

	// pollFunc overrides the configured capture command; used by
	// tests and embedders.
	pollFunc poller.PollFunc

	// Runtime state, owned by Run. coverageStart and quotaPoller are
	// also read by Health from other goroutines, under stateMu.
	volume        window.HourlyVolume
	snapshots     []poller.Record
	coverageStart time.Time
	sums          store.Store
	fileReader    reader.Reader

	stateMu     sync.Mutex
	quotaPoller poller.Poller
}

// Health combines poller status with how far back snapshot coverage
// extends. Days before CoverageStart cannot be classified.
type Health struct {
	poller.Health

	CoverageStart time.Time `json:"coverage_start,omitempty"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPollFunc substitutes the snapshot source.
func WithPollFunc(fn poller.PollFunc) Option {
	return func(d *Daemon) { d.pollFunc = fn }
}

// New creates a Daemon from configuration.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		logger: log,
		volume: make(window.HourlyVolume),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.pollFunc == nil && cfg.Poller.Command != "" {
		fn, err := capture.CommandSource(cfg.Poller.Command, log)
		if err != nil {
			return nil, err
		}
		d.pollFunc = fn
	}

	return d, nil
}

// Run executes the daemon until ctx is cancelled. It acquires the
// instance lock, replays event history into the store, then tails
// event files and polls quota snapshots concurrently.
func (d *Daemon) Run(ctx context.Context) error {
	lock, err := AcquireLock(filepath.Join(d.cfg.Storage.DataDir, LockFileName))
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			d.logger.Warn("failed to release lock", "error", rerr)
		}
	}()

	db, err := bolt.Open(d.cfg.Storage.DBPath, 0600, &bolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			d.logger.Warn("failed to close database", "error", cerr)
		}
	}()

	d.sums, err = store.New(db, pricing.New(ratesFromConfig(d.cfg.Pricing)), d.logger)
	if err != nil {
		return err
	}

	positions, err := reader.NewPositionStore(db)
	if err != nil {
		return err
	}
	d.fileReader = reader.New(parser.New(d.logger), positions, d.logger)

	snapLog, err := poller.OpenLog(d.cfg.Storage.SnapshotLogPath, d.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := snapLog.Close(); cerr != nil {
			d.logger.Warn("failed to close snapshot log", "error", cerr)
		}
	}()

	if err := d.initialSync(snapLog); err != nil {
		return err
	}

	fsw, err := watcher.New(watcher.Config{}, d.logger)
	if err != nil {
		return err
	}
	defer fsw.Close() // nolint:errcheck

	scanner := discovery.New(d.cfg.EventLogDirs, d.logger)
	if err := fsw.Start(ctx, scanner.Roots()); err != nil {
		// Collection still works from the poller side; file changes
		// just will not be noticed until restart.
		d.logger.Error("watcher unavailable, live tailing disabled", "error", err)
	}

	// Without a poll source the daemon still ingests event logs; days
	// simply stay unclassified. A nil channel never delivers.
	var updates <-chan poller.Record
	if d.pollFunc != nil {
		quotaPoller, perr := poller.New(poller.Config{
			Interval:         d.cfg.Poller.Interval,
			Timeout:          d.cfg.Poller.Timeout,
			FailureThreshold: d.cfg.Poller.FailureThreshold,
			Poll:             d.pollFunc,
		}, snapLog, d.logger)
		if perr != nil {
			return perr
		}
		d.stateMu.Lock()
		d.quotaPoller = quotaPoller
		d.stateMu.Unlock()
		go quotaPoller.Start(ctx) // nolint:errcheck
		updates = quotaPoller.Updates()
	} else {
		d.logger.Warn("no capture command configured, snapshot polling disabled")
	}

	d.logger.Info("daemon running",
		"data_dir", d.cfg.Storage.DataDir,
		"event_log_dirs", d.cfg.EventLogDirs)

	rotation := time.NewTicker(rotationInterval)
	defer rotation.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping", "reason", ctx.Err())
			return nil

		case ev, ok := <-fsw.Events():
			if !ok {
				continue
			}
			d.handleFileEvent(ev)

		case werr, ok := <-fsw.Errors():
			if ok {
				d.logger.Warn("watcher error", "error", werr)
			}

		case rec, ok := <-updates:
			if !ok {
				continue
			}
			d.handleSnapshot(rec)

		case now := <-rotation.C:
			d.rotate(snapLog, now)
		}
	}
}

// initialSync replays every discovered event file from offset zero.
// The store's merge watermarks make the replay idempotent, and the
// full pass rebuilds the in-memory hourly volume that classification
// needs. Read positions end up at each file's tail so subsequent
// watcher-driven reads are incremental.
func (d *Daemon) initialSync(snapLog *poller.Log) error {
	scanner := discovery.New(d.cfg.EventLogDirs, d.logger)
	files, err := scanner.Scan()
	if err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	total := 0
	for _, f := range files {
		if err := d.fileReader.Reset(f.Path); err != nil {
			return err
		}
		records, err := d.fileReader.Read(f.Path)
		if err != nil {
			d.logger.Warn("skipping unreadable event file",
				"path", f.Path,
				"error", err)
			continue
		}
		d.ingest(records)
		total += len(records)
	}

	snapshots, err := snapLog.Load()
	if err != nil {
		return err
	}
	d.snapshots = snapshots
	if len(snapshots) > 0 {
		d.setCoverageStart(snapshots[0].Timestamp)
	}

	d.reclassify()

	d.logger.Info("initial sync complete",
		"files", len(files),
		"records", total,
		"snapshots", len(snapshots))
	return nil
}

// handleFileEvent tails the changed file into the store.
func (d *Daemon) handleFileEvent(ev watcher.Event) {
	switch ev.Op {
	case watcher.OpRemove:
		if err := d.fileReader.Reset(ev.Path); err != nil {
			d.logger.Warn("failed to reset removed file position",
				"path", ev.Path,
				"error", err)
		}
		return
	case watcher.OpCreate, watcher.OpWrite:
	default:
		return
	}

	records, err := d.fileReader.Read(ev.Path)
	if err != nil {
		d.logger.Warn("failed to read changed file",
			"path", ev.Path,
			"error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	d.ingest(records)
	d.reclassify()
}

// handleSnapshot folds a fresh quota snapshot into the window model.
func (d *Daemon) handleSnapshot(rec poller.Record) {
	d.snapshots = append(d.snapshots, rec)
	if d.getCoverageStart().IsZero() {
		d.setCoverageStart(rec.Timestamp)
	}
	d.reclassify()
}

// Health implements the collection health contract for embedders. The
// CLI health command derives the same view from durable state instead,
// since it runs in a separate process.
func (d *Daemon) Health() Health {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	h := Health{CoverageStart: d.coverageStart}
	if d.quotaPoller != nil {
		h.Health = d.quotaPoller.Health()
	} else {
		h.State = poller.StateIdle
	}
	return h
}

func (d *Daemon) getCoverageStart() time.Time {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.coverageStart
}

func (d *Daemon) setCoverageStart(t time.Time) {
	d.stateMu.Lock()
	d.coverageStart = t
	d.stateMu.Unlock()
}

// ingest merges records into the store and the hourly volume.
func (d *Daemon) ingest(records []parser.TokenRecord) {
	for _, rec := range records {
		d.volume.Add(rec.Timestamp, rec.Usage.TotalTokens())
	}
	if err := d.sums.MergeUsage(records); err != nil {
		d.logger.Error("failed to merge usage", "error", err)
	}
}

// reclassify recomputes day splits from the current snapshot set.
func (d *Daemon) reclassify() {
	days := window.Classify(d.snapshots, d.volume, d.getCoverageStart(), 0)
	if len(days) == 0 {
		return
	}
	if err := d.sums.MergeClassification(days); err != nil {
		d.logger.Error("failed to merge classification", "error", err)
	}
}

// ratesFromConfig converts configured rate overrides to a pricing
// table input. An empty map keeps the built-in defaults.
func ratesFromConfig(overrides map[string]config.RateConfig) map[string]pricing.Rates {
	if len(overrides) == 0 {
		return nil
	}
	rates := make(map[string]pricing.Rates, len(overrides))
	for model, rc := range overrides {
		rates[model] = pricing.Rates{
			Input:      rc.Input,
			Output:     rc.Output,
			CacheWrite: rc.CacheWrite,
			CacheRead:  rc.CacheRead,
		}
	}
	return rates
}

// rotate enforces retention on summaries, snapshots, and the
// in-memory snapshot set.
func (d *Daemon) rotate(snapLog *poller.Log, now time.Time) {
	if _, err := d.sums.Rotate(d.cfg.Storage.RetentionDays, now); err != nil {
		d.logger.Error("summary rotation failed", "error", err)
	}

	cutoff := now.AddDate(0, 0, -d.cfg.Storage.SnapshotRetentionDays)
	if err := snapLog.Rotate(cutoff); err != nil {
		d.logger.Error("snapshot log rotation failed", "error", err)
	}

	kept := d.snapshots[:0]
	for _, rec := range d.snapshots {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	d.snapshots = kept

	// Coverage now begins at the oldest retained snapshot. Days before
	// it classify as unclassified, which the store refuses to let
	// overwrite an observed split.
	if len(kept) > 0 {
		d.setCoverageStart(kept[0].Timestamp)
	} else {
		d.setCoverageStart(time.Time{})
	}
}
