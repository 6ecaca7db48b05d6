package redis

import (
	"context"
	"testing"
	"time"

	"github.com/misteriosai/agent-memory/internal/config"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	"github.com/misteriosai/agent-memory/internal/testutil/testredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := load(config.WithContext(context.Background(), &cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_MEMORY_REDIS_URL")
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	_, err := LoadFromURL(context.Background(), "not-a-url", time.Minute)
	require.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := testredis.StartRedis(t)
	ctx := context.Background()

	c, err := LoadFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	key := registrycache.Key("tei", "remember me")
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []float32{1, 0, 0}, 0))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, got)
}
