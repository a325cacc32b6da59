package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReplayGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	g := NewMemoryReplayGuard(time.Hour)
	g.now = func() time.Time { return now }

	seen, err := g.Seen(ctx, "dlv-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Mark(ctx, "dlv-1"))

	seen, err = g.Seen(ctx, "dlv-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = g.Seen(ctx, "dlv-2")
	require.NoError(t, err)
	assert.False(t, seen)

	t.Run("forgets after ttl", func(t *testing.T) {
		now = now.Add(time.Hour)

		seen, err := g.Seen(ctx, "dlv-1")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}

func TestRedisReplayGuard_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisReplayGuard(client, time.Minute)

	_, err := g.Seen(context.Background(), "dlv-1")
	assert.Error(t, err)
	assert.Error(t, g.Mark(context.Background(), "dlv-1"))
}
