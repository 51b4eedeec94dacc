// Package pidfile keeps two installations from running at the same time.
package pidfile

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockedError reports the process that already holds the lock.
type LockedError struct {
	Path string
	PID  int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("another installation is already running (pid %d, lock %s)", e.PID, e.Path)
}

// IsRunning reports whether the PID recorded at path belongs to a live
// process. A missing file means nothing is running.
var IsRunning = func(path string) (bool, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil // Process not found
	}

	// Sending signal 0 to a process on Unix-like systems checks for its existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil || stderrors.Is(err, syscall.EPERM), nil
}

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}

	return pid, nil
}

// Acquire writes the current PID to path. It fails with *LockedError while
// another live process holds the file; a stale file is replaced. The
// returned func removes the file.
func Acquire(path string) (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write pidfile: %w", werr)
			}
			return func() error { return remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create pidfile: %w", err)
		}

		running, rerr := IsRunning(path)
		if rerr == nil && running {
			pid, _ := Read(path)
			return nil, &LockedError{Path: path, PID: pid}
		}
		if err := remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale pidfile: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to acquire %s", path)
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
