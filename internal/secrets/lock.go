package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrLockTimeout = errors.New("file lock: acquire timed out")

// FileLock is an advisory cross-process lock built on atomic file creation.
// A lock file older than StaleAfter is assumed to belong to a crashed
// process and is removed, so a crash can never deadlock future writers.
type FileLock struct {
	Path       string
	StaleAfter time.Duration
	PollEvery  time.Duration
}

func NewFileLock(path string) *FileLock {
	return &FileLock{
		Path:       path,
		StaleAfter: 5 * time.Minute,
		PollEvery:  50 * time.Millisecond,
	}
}

// Acquire tries exclusive creation of the lock file until timeout.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("file lock: %w", err)
		}

		if info, statErr := os.Stat(l.Path); statErr == nil {
			if time.Since(info.ModTime()) > l.StaleAfter {
				_ = os.Remove(l.Path)
				continue
			}
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.PollEvery):
		}
	}
}

// Release deletes the lock file, best effort.
func (l *FileLock) Release() {
	_ = os.Remove(l.Path)
}
