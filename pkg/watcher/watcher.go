// Package watcher provides real-time monitoring of event log
// directories. It wraps fsnotify with per-file debouncing so a burst
// of appends to one session file surfaces as a single change event,
// and automatically watches project directories created after startup.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

// Op describes a file operation type.
type Op uint32

// File operation types.
const (
	OpCreate Op = 1 << iota // File created
	OpWrite                 // File modified
	OpRemove                // File deleted or renamed away
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Event represents a change to one event log file.
type Event struct {
	// Path is the absolute path to the file that changed.
	Path string

	// Op is the operation that triggered the event.
	Op Op

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Config contains watcher configuration.
type Config struct {
	// DebounceInterval is how long to wait before emitting an event.
	// Multiple changes to the same file within this interval are
	// coalesced. Default: 200ms.
	DebounceInterval time.Duration

	// ErrorThreshold is the number of consecutive fsnotify errors
	// before the watcher reports ErrTooManyFailures and stops
	// forwarding individual errors. Default: 5.
	ErrorThreshold int
}

// Watcher monitors event log directories for changes.
type Watcher interface {
	// Start begins watching the given directories. Missing roots are
	// logged and skipped; at least one root must exist.
	//
	// Start returns immediately; events are delivered on Events()
	// until the context is cancelled or Close is called.
	Start(ctx context.Context, roots []string) error

	// Events returns the channel of debounced file change events.
	Events() <-chan Event

	// Errors returns the channel of non-fatal watcher errors.
	Errors() <-chan error

	// Close stops watching and releases resources.
	Close() error
}

// dirWatcher implements Watcher on top of fsnotify.
type dirWatcher struct {
	fsw    *fsnotify.Watcher
	logger logger.Logger
	config Config

	events chan Event
	errors chan error

	mu      sync.Mutex
	started bool
	closed  bool

	pending   map[string]*time.Timer
	pendingMu sync.Mutex

	failures int
}

// New creates a Watcher with the given configuration.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 5
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &dirWatcher{
		fsw:     fsw,
		logger:  log,
		config:  cfg,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start implements Watcher.Start.
func (w *dirWatcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	watched := 0
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("watch root does not exist, skipping", "root", root)
				continue
			}
			return fmt.Errorf("failed to stat watch root %s: %w", root, err)
		}

		if err := w.watchTree(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		watched++
	}

	if watched == 0 {
		return ErrNoWatchableRoots
	}

	w.logger.Info("watcher started",
		"roots", roots,
		"debounce", w.config.DebounceInterval)

	go w.loop(ctx)
	return nil
}

// Events implements Watcher.Events.
func (w *dirWatcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *dirWatcher) Errors() <-chan error {
	return w.errors
}

// Close implements Watcher.Close.
func (w *dirWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.pendingMu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = nil
	w.pendingMu.Unlock()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}

	close(w.events)
	close(w.errors)

	w.logger.Info("watcher closed")
	return nil
}

// loop drains fsnotify channels until shutdown.
func (w *dirWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("watcher loop stopped", "reason", ctx.Err())
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		}
	}
}

func (w *dirWatcher) handleEvent(ev fsnotify.Event) {
	// A new project directory must itself be watched before its
	// session files produce events.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					"path", ev.Name,
					"error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpWrite
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpRemove
	default:
		return
	}

	w.debounce(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
}

// debounce coalesces rapid events for the same path into one delivery.
func (w *dirWatcher) debounce(ev Event) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.pending == nil {
		return
	}

	if timer, ok := w.pending[ev.Path]; ok {
		timer.Stop()
	}

	w.pending[ev.Path] = time.AfterFunc(w.config.DebounceInterval, func() {
		w.pendingMu.Lock()
		if w.pending != nil {
			delete(w.pending, ev.Path)
		}
		w.pendingMu.Unlock()

		w.deliver(ev)
	})
}

// deliver sends ev unless the watcher is closed. Holding the mutex
// across the send orders it against Close, which closes the channel
// under the same lock; a timer firing during shutdown must not send
// on a closed channel.
func (w *dirWatcher) deliver(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.events <- ev:
	default:
		w.logger.Warn("event channel full, dropping event", "path", ev.Path)
	}
}

func (w *dirWatcher) handleError(err error) {
	w.failures++
	w.logger.Error("fsnotify error", "error", err, "consecutive", w.failures)

	out := err
	if w.failures >= w.config.ErrorThreshold {
		out = fmt.Errorf("%w: %d consecutive errors", ErrTooManyFailures, w.failures)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.errors <- out:
	default:
		w.logger.Warn("error channel full, dropping error")
	}
}

// watchTree adds path and every directory beneath it to the watcher.
func (w *dirWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("failed to watch directory",
				"path", path,
				"error", addErr)
		}
		return nil
	})
}
