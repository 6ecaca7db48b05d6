package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// Wrap returns a VectorStore that records VectorStoreLatency for every operation.
func Wrap(inner registryvector.VectorStore) registryvector.VectorStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner registryvector.VectorStore
}

func (m *metricsStore) Name() string { return m.inner.Name() }
func (m *metricsStore) Close() error { return m.inner.Close() }

func (m *metricsStore) Add(ctx context.Context, req registryvector.AddRequest) ([]uuid.UUID, error) {
	defer telemetry.ObserveVectorStore(m.inner.Name(), "add", time.Now())
	return m.inner.Add(ctx, req)
}

func (m *metricsStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	defer telemetry.ObserveVectorStore(m.inner.Name(), "search", time.Now())
	return m.inner.Search(ctx, req)
}
