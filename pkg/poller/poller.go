package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

// Poller runs the snapshot collection loop.
type Poller interface {
	// Start runs the polling loop until ctx is cancelled. The first
	// poll fires immediately, then every Interval. Start blocks; run
	// it in a goroutine.
	Start(ctx context.Context) error

	// Updates returns the channel of successfully collected records.
	// Slow consumers cause records to be dropped from the channel,
	// never from the snapshot log.
	Updates() <-chan Record

	// Health returns a snapshot of poller status.
	Health() Health
}

// poller implements Poller.
type poller struct {
	config Config
	log    *Log
	logger logger.Logger

	updates chan Record

	inFlight atomic.Bool
	started  atomic.Bool

	mu     sync.RWMutex
	health Health
}

// New creates a Poller that appends successful snapshots to snapLog.
//
// Defaults: Interval 30s, Timeout Interval/2, FailureThreshold 5.
func New(cfg Config, snapLog *Log, log logger.Logger) (Poller, error) {
	if cfg.Poll == nil {
		return nil, ErrNilPollFunc
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval / 2
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}

	return &poller{
		config:  cfg,
		log:     snapLog,
		logger:  log,
		updates: make(chan Record, 16),
		health:  Health{State: StateIdle},
	}, nil
}

// Start implements Poller.Start.
func (p *poller) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	p.logger.Info("poller started",
		"interval", p.config.Interval,
		"timeout", p.config.Timeout,
		"failure_threshold", p.config.FailureThreshold)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Updates implements Poller.Updates.
func (p *poller) Updates() <-chan Record {
	return p.updates
}

// Health implements Poller.Health.
func (p *poller) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// tick runs one poll attempt. A tick that arrives while the previous
// attempt is still running is skipped rather than queued, so a slow
// provider cannot pile up concurrent scrapes.
func (p *poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.health.SkippedTicks++
		p.mu.Unlock()
		p.logger.Warn("previous poll still running, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	pollCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result, err := p.config.Poll(pollCtx)
	if err != nil {
		p.recordFailure(err)
		return
	}

	rec := Record{Timestamp: time.Now().UTC(), Result: result}
	if err := p.log.Append(rec); err != nil {
		p.recordFailure(err)
		return
	}

	p.recordSuccess(rec)

	select {
	case p.updates <- rec:
	default:
		p.logger.Warn("updates channel full, dropping record",
			"timestamp", rec.Timestamp)
	}
}

func (p *poller) recordSuccess(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.health.PollCount++
	p.health.ConsecutiveFailures = 0
	p.health.LastSuccess = rec.Timestamp
	p.health.LastError = ""
	p.health.State = StateHealthy

	p.logger.Debug("poll succeeded",
		"session_percent", rec.SessionPercentUsed,
		"session_resets_at", rec.SessionResetsAt)
}

func (p *poller) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.health.PollCount++
	p.health.ConsecutiveFailures++
	p.health.LastError = err.Error()

	if p.health.ConsecutiveFailures >= p.config.FailureThreshold {
		if p.health.State != StateDegraded {
			p.logger.Error("poller degraded",
				"consecutive_failures", p.health.ConsecutiveFailures,
				"threshold", p.config.FailureThreshold,
				"error", err)
		}
		p.health.State = StateDegraded
		return
	}

	p.logger.Warn("poll failed",
		"consecutive_failures", p.health.ConsecutiveFailures,
		"error", err)
}
