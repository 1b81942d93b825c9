package kis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardRejectsDuplicateSymbol(t *testing.T) {
	g := NewGuard(5)
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "005930")
	if err != nil || !ok {
		t.Fatalf("First acquire should succeed, got ok=%v err=%v", ok, err)
	}

	// A second order for the same symbol is rejected, not queued.
	_, ok, err = g.Acquire(ctx, "005930")
	if err != nil {
		t.Fatalf("Duplicate acquire returned error: %v", err)
	}
	if ok {
		t.Error("Expected duplicate acquire to be rejected")
	}

	// Other symbols are unaffected.
	release2, ok, err := g.Acquire(ctx, "000660")
	if err != nil || !ok {
		t.Fatalf("Different symbol should succeed, got ok=%v err=%v", ok, err)
	}
	release2()

	release()
	release3, ok, err := g.Acquire(ctx, "005930")
	if err != nil || !ok {
		t.Fatalf("Acquire after release should succeed, got ok=%v err=%v", ok, err)
	}
	release3()
}

func TestGuardGlobalSlotLimit(t *testing.T) {
	g := NewGuard(1)

	release, ok, err := g.Acquire(context.Background(), "AAA")
	if err != nil || !ok {
		t.Fatalf("First acquire should succeed, got ok=%v err=%v", ok, err)
	}

	// The slot is exhausted; a different symbol blocks until the context
	// gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err = g.Acquire(ctx, "BBB")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded waiting for a slot, got %v", err)
	}

	release()
	release2, ok, err := g.Acquire(context.Background(), "BBB")
	if err != nil || !ok {
		t.Fatalf("Acquire after slot freed should succeed, got ok=%v err=%v", ok, err)
	}
	release2()
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	g := NewGuard(1)

	release, ok, err := g.Acquire(context.Background(), "AAA")
	if err != nil || !ok {
		t.Fatal("Acquire failed")
	}
	release()
	release() // second call must not free a slot twice

	r1, ok, _ := g.Acquire(context.Background(), "AAA")
	if !ok {
		t.Fatal("Reacquire failed")
	}
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err = g.Acquire(ctx, "BBB")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Double release leaked a slot: %v", err)
	}
}
