package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

func newStartedWatcher(t *testing.T, root string) Watcher {
	t.Helper()

	w, err := New(Config{DebounceInterval: 20 * time.Millisecond}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := w.Start(ctx, []string{root}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return w
}

func waitForEvent(t *testing.T, w Watcher, path string, op Op) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path && ev.Op == op {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %s", op, path)
		}
	}
}

func TestWatcherDetectsWrite(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "session.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	w := newStartedWatcher(t, root)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	if _, err := f.WriteString("{}\n"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	waitForEvent(t, w, path, OpWrite)
}

func TestWatcherDetectsCreate(t *testing.T) {
	root := t.TempDir()
	w := newStartedWatcher(t, root)

	path := filepath.Join(root, "new.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	waitForEvent(t, w, path, OpCreate)
}

func TestWatcherFollowsNewDirectory(t *testing.T) {
	root := t.TempDir()
	w := newStartedWatcher(t, root)

	// A project directory created after startup must be watched too.
	projDir := filepath.Join(root, "new-project")
	if err := os.Mkdir(projDir, 0700); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(projDir, "session.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	waitForEvent(t, w, path, OpCreate)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	w := newStartedWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for non-jsonl file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "session.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	w := newStartedWatcher(t, root)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := f.WriteString("{}\n"); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	waitForEvent(t, w, path, OpWrite)

	// The burst coalesces; no flood of trailing events.
	count := 0
	timeout := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-w.Events():
			count++
		case <-timeout:
			done = true
		}
	}
	if count > 2 {
		t.Errorf("received %d extra events after debounce, want <= 2", count)
	}
}

func TestStartMissingRoots(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	err = w.Start(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})
	if !errors.Is(err, ErrNoWatchableRoots) {
		t.Errorf("Start() error = %v, want ErrNoWatchableRoots", err)
	}
}

func TestStartTwice(t *testing.T) {
	root := t.TempDir()
	w := newStartedWatcher(t, root)

	if err := w.Start(context.Background(), []string{root}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestCloseDuringDebounce(t *testing.T) {
	// A debounce timer firing while Close runs must not panic by
	// sending on the closed events channel. Repeat to give the race a
	// real chance to interleave.
	for i := 0; i < 20; i++ {
		root := t.TempDir()
		path := filepath.Join(root, "session.jsonl")

		w, err := New(Config{DebounceInterval: time.Millisecond}, logger.Noop())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		if err := w.Start(ctx, []string{root}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		// Close while the debounce timer may be in flight.
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		time.Sleep(5 * time.Millisecond)
		cancel()
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
