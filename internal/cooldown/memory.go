package cooldown

import (
	"context"
	"sync"
	"time"

	"threshold-alerts/internal/engine"
)

// MemoryGate is an in-process Gate with the same check-and-create contract
// as RedisGate. Used by tests and the simulate command; records do not
// survive the process.
type MemoryGate struct {
	mu   sync.Mutex
	data map[string]time.Time // key -> expiry
	now  func() time.Time
}

// NewMemoryGate creates an empty in-memory gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{
		data: make(map[string]time.Time),
		now:  time.Now,
	}
}

// TryAcquire checks and creates under one lock hold.
func (g *MemoryGate) TryAcquire(_ context.Context, symbol string, trigger engine.Trigger, ttl time.Duration) (bool, error) {
	key := KeyFor(symbol, trigger)

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, held := g.data[key]; held && expiry.After(g.now()) {
		return false, nil
	}
	g.data[key] = g.now().Add(ttl)
	return true, nil
}

// Exists reports an unexpired record without touching it.
func (g *MemoryGate) Exists(_ context.Context, symbol string, trigger engine.Trigger) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, held := g.data[KeyFor(symbol, trigger)]
	return held && expiry.After(g.now()), nil
}

var _ Gate = (*MemoryGate)(nil)
