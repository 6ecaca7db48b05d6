package metrics

import (
	"context"
	"time"

	"github.com/misteriosai/agent-memory/internal/model"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// Wrap returns a TraceStore that records TraceStoreLatency for every operation.
func Wrap(inner registrytrace.TraceStore) registrytrace.TraceStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner registrytrace.TraceStore
}

func (m *metricsStore) Name() string { return m.inner.Name() }
func (m *metricsStore) Close() error { return m.inner.Close() }

func (m *metricsStore) Insert(ctx context.Context, trace model.ProceduralTrace) error {
	defer telemetry.ObserveTraceStore(m.inner.Name(), "insert", time.Now())
	return m.inner.Insert(ctx, trace)
}

func (m *metricsStore) ListByTask(ctx context.Context, taskID, userID string, limit int) ([]model.ProceduralTrace, error) {
	defer telemetry.ObserveTraceStore(m.inner.Name(), "list_by_task", time.Now())
	return m.inner.ListByTask(ctx, taskID, userID, limit)
}
