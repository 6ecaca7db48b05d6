package metrics

import (
	"context"
	"time"

	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// Wrap returns an Embedder that records EmbeddingLatency for every non-empty call.
func Wrap(inner registryembed.Embedder) registryembed.Embedder {
	return &metricsEmbedder{inner: inner}
}

type metricsEmbedder struct {
	inner registryembed.Embedder
}

func (m *metricsEmbedder) ModelName() string { return m.inner.ModelName() }
func (m *metricsEmbedder) Dimension() int    { return m.inner.Dimension() }

func (m *metricsEmbedder) EmbedTexts(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return m.inner.EmbedTexts(ctx, texts)
	}
	start := time.Now()
	defer func() { telemetry.ObserveEmbedding(m.inner.ModelName(), start, err) }()
	return m.inner.EmbedTexts(ctx, texts)
}
