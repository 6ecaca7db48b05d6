package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/memory"
	"github.com/misteriosai/agent-memory/internal/model"
	_ "github.com/misteriosai/agent-memory/internal/plugin/all"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.EmbedType = "local"
	cfg.VectorType = "sqlitevec"
	cfg.DatastoreType = "sqlite"
	cfg.CacheType = "local"
	cfg.VectorDimension = 64
	cfg.SQLitePath = filepath.Join(t.TempDir(), "memory.db")
	return &cfg
}

func TestInit_LocalStack(t *testing.T) {
	cfg := localConfig(t)
	svc := service.New(cfg)
	ctx := context.Background()

	require.NoError(t, svc.Init(ctx))
	assert.False(t, svc.Ready())
	svc.MarkReady()
	assert.True(t, svc.Ready())
	assert.True(t, svc.Semantic.Enabled())

	scope := model.Scope{UserID: "u1"}
	w := svc.Semantic.Remember(ctx, []string{"hello world", "agent reply"}, scope, nil)
	require.NoError(t, w.Err)
	assert.Equal(t, 2, w.Value)
	r := svc.Semantic.Retrieve(ctx, "hello", scope, 3)
	require.NoError(t, r.Err)
	require.NotEmpty(t, r.Value)
	assert.Equal(t, "hello world", r.Value[0].Text)

	id := svc.Procedural.LogStep(ctx, memory.Step{TaskID: "t1", Step: 1, Input: "input text"})
	require.NoError(t, id.Err)
	traces, err := svc.Procedural.ListByTask(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, traces, 1)

	require.NoError(t, svc.Shutdown(ctx))
	assert.False(t, svc.Ready())
	assert.False(t, svc.Semantic.Enabled())
}

func TestInit_RejectsTEIWithoutURL(t *testing.T) {
	cfg := localConfig(t)
	cfg.EmbedType = "tei"
	cfg.EmbeddingURL = ""

	err := service.New(cfg).Init(context.Background())
	var cfgErr *registryembed.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "EMBEDDINGS_URL", cfgErr.Setting)
}

func TestInit_TEIWithoutURLIsFineWhenDisabled(t *testing.T) {
	cfg := localConfig(t)
	cfg.EmbedType = "tei"
	cfg.MemoryEnabled = false

	svc := service.New(cfg)
	require.NoError(t, svc.Init(context.Background()))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	assert.False(t, svc.Semantic.Enabled())
	assert.True(t, svc.Semantic.Remember(context.Background(), []string{"x"}, model.Scope{}, nil).Skipped)
}

func TestInit_UnknownBackend(t *testing.T) {
	cfg := localConfig(t)
	cfg.VectorType = "faiss"
	svc := service.New(cfg)
	assert.Error(t, svc.Init(context.Background()))
}

func TestMarkReady_RequiresInit(t *testing.T) {
	svc := service.New(localConfig(t))
	svc.MarkReady()
	assert.False(t, svc.Ready())
}

func TestShutdown_WhileRequestsAreInFlight(t *testing.T) {
	cfg := localConfig(t)
	svc := service.New(cfg)
	ctx := context.Background()
	require.NoError(t, svc.Init(ctx))
	svc.MarkReady()

	semantic, procedural := svc.Semantic, svc.Procedural
	scope := model.Scope{UserID: "u1"}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := range 20 {
				svc.Semantic.Remember(ctx, []string{"draining"}, scope, nil)
				svc.Semantic.Retrieve(ctx, "draining", scope, 3)
				svc.Procedural.LogStep(ctx, memory.Step{TaskID: "drain", Step: i*100 + j})
			}
		}()
	}
	close(start)
	require.NoError(t, svc.Shutdown(ctx))
	wg.Wait()

	assert.Same(t, semantic, svc.Semantic)
	assert.Same(t, procedural, svc.Procedural)
	assert.False(t, svc.Semantic.Enabled())
	assert.True(t, svc.Semantic.Remember(ctx, []string{"late"}, scope, nil).Skipped)
	assert.True(t, svc.Procedural.LogStep(ctx, memory.Step{TaskID: "late"}).Skipped)
}
