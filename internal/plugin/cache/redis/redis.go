package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/misteriosai/agent-memory/internal/config"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EmbeddingCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: AGENT_MEMORY_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURL creates an EmbeddingCache from a Redis URL, verifying the connection.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.EmbeddingCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisEmbeddingCache{client: client, ttl: ttl}, nil
}

type redisEmbeddingCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisEmbeddingCache) Available() bool {
	return true
}

func (c *redisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *redisEmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisEmbeddingCache) Close() error {
	return c.client.Close()
}

var _ registrycache.EmbeddingCache = (*redisEmbeddingCache)(nil)
