package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLock(t *testing.T) *FileLock {
	t.Helper()
	l := NewFileLock(filepath.Join(t.TempDir(), "x.lock"))
	l.PollEvery = 5 * time.Millisecond
	return l
}

func TestFileLockAcquireRelease(t *testing.T) {
	l := testLock(t)
	ctx := context.Background()

	if err := l.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(l.Path); err != nil {
		t.Fatalf("Lock file missing after acquire: %v", err)
	}

	l.Release()
	if _, err := os.Stat(l.Path); !os.IsNotExist(err) {
		t.Error("Lock file still present after release")
	}

	// Reacquire after release succeeds.
	if err := l.Acquire(ctx, time.Second); err != nil {
		t.Errorf("Reacquire failed: %v", err)
	}
}

func TestFileLockHeldTimesOut(t *testing.T) {
	l := testLock(t)
	ctx := context.Background()

	if err := l.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	second := &FileLock{Path: l.Path, StaleAfter: l.StaleAfter, PollEvery: l.PollEvery}
	err := second.Acquire(ctx, 30*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout, got %v", err)
	}
}

func TestFileLockStaleRemoval(t *testing.T) {
	l := testLock(t)
	ctx := context.Background()

	// Simulate a lock abandoned by a crashed process.
	if err := os.WriteFile(l.Path, []byte("9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(l.Path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := l.Acquire(ctx, time.Second); err != nil {
		t.Errorf("Expected stale lock to be broken, got %v", err)
	}
}

func TestFileLockContextCancel(t *testing.T) {
	l := testLock(t)

	if err := l.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &FileLock{Path: l.Path, StaleAfter: l.StaleAfter, PollEvery: l.PollEvery}
	if err := second.Acquire(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
