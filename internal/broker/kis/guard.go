package kis

import (
	"context"
	"sync"
)

const defaultMaxInFlight = 5

// Guard enforces the order-concurrency contract: at most one in-flight
// order per symbol, and at most maxInFlight broker calls system-wide. The
// per-symbol lock is try-only; a second concurrent order for a symbol is
// rejected immediately, never queued, so user intent is never silently
// batched.
type Guard struct {
	mu      sync.Mutex
	symbols map[string]*sync.Mutex
	slots   chan struct{}
}

func NewGuard(maxInFlight int) *Guard {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Guard{
		symbols: make(map[string]*sync.Mutex),
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Acquire attempts to take the symbol lock and then a global slot.
// ok=false means another order for this symbol is already in flight.
// On success the returned release function must be called exactly once.
func (g *Guard) Acquire(ctx context.Context, symbol string) (release func(), ok bool, err error) {
	sm := g.symbolMutex(symbol)
	if !sm.TryLock() {
		return nil, false, nil
	}

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		sm.Unlock()
		return nil, false, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-g.slots
			sm.Unlock()
		})
	}, true, nil
}

// Symbol mutexes are created lazily and never removed; the key space is
// bounded by the tradable symbols.
func (g *Guard) symbolMutex(symbol string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.symbols[symbol]
	if !ok {
		m = &sync.Mutex{}
		g.symbols[symbol] = m
	}
	return m
}
