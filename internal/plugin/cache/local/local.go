package local

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/misteriosai/agent-memory/internal/config"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
)

const defaultMaxCost = 64 * 1024 * 1024

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EmbeddingCache, error) {
	var maxCost int64 = defaultMaxCost
	if cfg := config.FromContext(ctx); cfg != nil && cfg.LocalCacheMaxCost > 0 {
		maxCost = cfg.LocalCacheMaxCost
	}
	return New(maxCost)
}

// New creates an in-process embedding cache bounded by maxCost bytes of vector data.
func New(maxCost int64) (*Cache, error) {
	// Roughly ten counters per expected 1024-d vector.
	counters := max(10*(maxCost/4096), 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{cache: c}, nil
}

// Cache is a ristretto-backed EmbeddingCache.
type Cache struct {
	cache *ristretto.Cache[string, []float32]
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *Cache) Set(_ context.Context, key string, vector []float32, ttl time.Duration) error {
	c.cache.SetWithTTL(key, vector, int64(len(vector)*4), ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *Cache) Close() error {
	c.cache.Close()
	return nil
}

var _ registrycache.EmbeddingCache = (*Cache)(nil)
