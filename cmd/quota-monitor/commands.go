package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/quota-monitor/pkg/config"
	"github.com/0xmhha/quota-monitor/pkg/daemon"
	"github.com/0xmhha/quota-monitor/pkg/display"
	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/poller"
	"github.com/0xmhha/quota-monitor/pkg/pricing"
	"github.com/0xmhha/quota-monitor/pkg/store"
)

// loadConfig loads configuration, optionally from an explicit path.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// newLogger builds the logger from config.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	})
}

// runDaemonCommand runs the collection daemon until interrupted.
func runDaemonCommand(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// reportCommand displays stored aggregates.
type reportCommand struct {
	configPath string
	from       string
	to         string
	daily      bool
	models     bool
	format     string
}

func (c *reportCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	s, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	f := display.New(display.Config{
		Format:     display.Format(c.format),
		ShowModels: c.models,
	})

	if c.daily {
		days, err := s.Query(c.from, c.to)
		if err != nil {
			return err
		}
		return f.FormatDays(os.Stdout, days)
	}

	rollup, err := s.Rollup(c.from, c.to)
	if err != nil {
		return err
	}
	return f.FormatRollup(os.Stdout, rollup)
}

// openStore opens the summary database read-only. A running daemon
// holds the write lock, which surfaces here as a timeout.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	if _, err := os.Stat(cfg.Storage.DBPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("no data at %s (has the daemon run?)", cfg.Storage.DBPath)
		}
		return nil, nil, err
	}

	db, err := bolt.Open(cfg.Storage.DBPath, 0600, &bolt.Options{
		ReadOnly: true,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, nil, fmt.Errorf("database %s is locked by the running daemon; stop it to run reports", cfg.Storage.DBPath)
		}
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := store.New(db, pricing.New(nil), logger.Noop())
	if err != nil {
		db.Close() // nolint:errcheck
		return nil, nil, err
	}

	return s, func() { _ = db.Close() }, nil
}

// healthCommand reports snapshot collection health.
type healthCommand struct {
	configPath string
	format     string
}

func (c *healthCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	snapLog, err := poller.OpenLog(cfg.Storage.SnapshotLogPath, logger.Noop())
	if err != nil {
		return err
	}
	defer snapLog.Close() // nolint:errcheck

	records, err := snapLog.Load()
	if err != nil {
		return err
	}

	report := display.HealthReport{
		State:         "idle",
		SnapshotCount: len(records),
		DaemonRunning: daemon.LockHeld(filepath.Join(cfg.Storage.DataDir, daemon.LockFileName)),
	}

	if len(records) > 0 {
		first := records[0].Timestamp
		last := records[len(records)-1].Timestamp
		age := time.Since(last)

		report.CoverageStart = first
		report.LastSnapshot = last
		report.SnapshotAge = age

		// Stale beyond a few intervals means collection is degraded.
		switch {
		case age <= 3*cfg.Poller.Interval:
			report.State = string(poller.StateHealthy)
		default:
			report.State = string(poller.StateDegraded)
		}
	}

	f := display.New(display.Config{Format: display.Format(c.format)})
	return f.FormatHealth(os.Stdout, report)
}
