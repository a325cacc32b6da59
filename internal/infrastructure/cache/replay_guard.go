// Package cache provides the short-lived key stores used at the edges:
// the payment webhook replay guard.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"backoffice/internal/domain/sales"
)

const defaultReplayPrefix = "backoffice:webhook:delivery:"

// RedisReplayGuard remembers processed webhook deliveries in Redis, so every
// server instance sees the same set.
type RedisReplayGuard struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ sales.ReplayGuard = (*RedisReplayGuard)(nil)

// NewRedisReplayGuard creates a guard on an existing client.
func NewRedisReplayGuard(client redis.UniversalClient, ttl time.Duration) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, keyPrefix: defaultReplayPrefix, ttl: ttl}
}

// Seen reports whether the delivery was already marked.
func (g *RedisReplayGuard) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.keyPrefix+deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("check webhook delivery: %w", err)
	}
	return n > 0, nil
}

// Mark records the delivery for the guard's TTL. Marking twice is harmless.
func (g *RedisReplayGuard) Mark(ctx context.Context, deliveryID string) error {
	if err := g.client.SetNX(ctx, g.keyPrefix+deliveryID, "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("mark webhook delivery: %w", err)
	}
	return nil
}

// MemoryReplayGuard is the single-process guard. Expired keys are dropped lazily.
type MemoryReplayGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

var _ sales.ReplayGuard = (*MemoryReplayGuard)(nil)

// NewMemoryReplayGuard creates an in-process guard.
func NewMemoryReplayGuard(ttl time.Duration) *MemoryReplayGuard {
	return &MemoryReplayGuard{entries: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (g *MemoryReplayGuard) Seen(_ context.Context, deliveryID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiresAt, ok := g.entries[deliveryID]
	if !ok {
		return false, nil
	}
	if !g.now().Before(expiresAt) {
		delete(g.entries, deliveryID)
		return false, nil
	}
	return true, nil
}

func (g *MemoryReplayGuard) Mark(_ context.Context, deliveryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if len(g.entries) > 1024 {
		for k, exp := range g.entries {
			if !now.Before(exp) {
				delete(g.entries, k)
			}
		}
	}
	g.entries[deliveryID] = now.Add(g.ttl)
	return nil
}
