package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock is a pid-file based single-instance guard. Two daemons merging
// into one database would not corrupt it (bbolt locks the file), but
// they would double-poll the provider and fight over watermarks.
type Lock struct {
	path string
}

// AcquireLock takes the lock at path, failing with ErrAlreadyRunning
// if another live process holds it. A lock left behind by a dead
// process is broken and re-acquired.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
				f.Close()        // nolint:errcheck
				os.Remove(path)  // nolint:errcheck
				return nil, fmt.Errorf("failed to write lock file: %w", werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path) // nolint:errcheck
				return nil, fmt.Errorf("failed to close lock file: %w", cerr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, ok := readLockPID(path)
		if ok && processAlive(pid) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, pid, path)
		}

		// Stale lock from a dead process: remove and retry once.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", rmErr)
		}
	}

	return nil, fmt.Errorf("%w: lock contention at %s", ErrAlreadyRunning, path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// LockHeld reports whether a live process holds the lock at path.
func LockHeld(path string) bool {
	pid, ok := readLockPID(path)
	return ok && processAlive(pid)
}

func readLockPID(path string) (int, bool) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
