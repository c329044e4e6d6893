package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"threshold-alerts/internal/engine"
)

// RedisGate backs the cooldown on a shared Redis instance. SET NX EX is a
// single atomic check-and-create, so at most one caller observes true per
// TTL window even across overlapping process instances.
type RedisGate struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisGate wires a Redis client into a gate.
func NewRedisGate(client *redis.Client, logger zerolog.Logger) *RedisGate {
	return &RedisGate{
		client: client,
		logger: logger.With().Str("component", "cooldown_gate").Logger(),
	}
}

// TryAcquire performs the atomic set-if-absent-with-expiry.
func (g *RedisGate) TryAcquire(ctx context.Context, symbol string, trigger engine.Trigger, ttl time.Duration) (bool, error) {
	key := KeyFor(symbol, trigger)
	acquired, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown setnx %s: %w", key, err)
	}
	if acquired {
		g.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("cooldown record created")
	}
	return acquired, nil
}

// Exists checks for an unexpired suppression record.
func (g *RedisGate) Exists(ctx context.Context, symbol string, trigger engine.Trigger) (bool, error) {
	key := KeyFor(symbol, trigger)
	n, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown exists %s: %w", key, err)
	}
	return n > 0, nil
}

var _ Gate = (*RedisGate)(nil)
