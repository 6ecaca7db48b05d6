package local

import (
	"context"
	"testing"
	"time"

	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	key := registrycache.Key("local", "hello world")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []float32{0.6, 0.8}, time.Minute))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.6, 0.8}, got)
}

func TestCacheKeysAreModelScoped(t *testing.T) {
	assert.NotEqual(t, registrycache.Key("a", "text"), registrycache.Key("b", "text"))
	assert.Equal(t, registrycache.Key("a", "text"), registrycache.Key("a", "text"))
}

func TestLoadRegistered(t *testing.T) {
	loader, err := registrycache.Select("local")
	require.NoError(t, err)
	c, err := loader(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.True(t, c.Available())
}
