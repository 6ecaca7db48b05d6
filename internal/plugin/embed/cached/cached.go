// Package cached wraps an Embedder with an EmbeddingCache. Only cache misses
// reach the inner embedder, still as a single batch.
package cached

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// Wrap returns inner unchanged when c is nil or unavailable.
func Wrap(inner registryembed.Embedder, c registrycache.EmbeddingCache, ttl time.Duration) registryembed.Embedder {
	if c == nil || !c.Available() {
		return inner
	}
	return &cachedEmbedder{inner: inner, cache: c, ttl: ttl}
}

type cachedEmbedder struct {
	inner registryembed.Embedder
	cache registrycache.EmbeddingCache
	ttl   time.Duration
}

func (e *cachedEmbedder) ModelName() string { return e.inner.ModelName() }
func (e *cachedEmbedder) Dimension() int    { return e.inner.Dimension() }

func (e *cachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	model := e.inner.ModelName()
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		vec, ok, err := e.cache.Get(ctx, registrycache.Key(model, text))
		if err != nil {
			log.Warn("Embedding cache get failed", "err", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	telemetry.CountEmbeddingCache(len(texts)-len(missTexts), len(missTexts))
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, &registryembed.EmbeddingServiceError{
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(missTexts), len(vecs)),
		}
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		if err := e.cache.Set(ctx, registrycache.Key(model, missTexts[j]), vec, e.ttl); err != nil {
			log.Warn("Embedding cache set failed", "err", err)
		}
	}
	return out, nil
}

var _ registryembed.Embedder = (*cachedEmbedder)(nil)
