package cooldown

import (
	"context"
	"time"

	"threshold-alerts/internal/engine"
)

const keyPrefix = "psx_alert"

// Gate decides whether a (symbol, trigger) pair may notify now.
type Gate interface {
	// TryAcquire returns true exactly when no unexpired suppression record
	// exists for the pair, atomically creating one with the given TTL. A
	// denied acquire has no side effect: the existing record's remaining
	// TTL is left untouched.
	TryAcquire(ctx context.Context, symbol string, trigger engine.Trigger, ttl time.Duration) (bool, error)

	// Exists reports whether an unexpired suppression record is present,
	// without creating one.
	Exists(ctx context.Context, symbol string, trigger engine.Trigger) (bool, error)
}

// KeyFor derives the durable suppression key for a (symbol, trigger) pair.
// Symbols are uppercase tickers and never contain ':', so the key is
// collision-free and stable across process restarts.
func KeyFor(symbol string, trigger engine.Trigger) string {
	return keyPrefix + ":" + symbol + ":" + trigger.String()
}
