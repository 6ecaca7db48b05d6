package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/memory"
	"github.com/misteriosai/agent-memory/internal/model"
	"github.com/misteriosai/agent-memory/internal/plugin/trace/gormstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTraceStore struct {
	inserts int
}

func (f *failingTraceStore) Name() string { return "failing" }
func (f *failingTraceStore) Close() error { return nil }
func (f *failingTraceStore) Insert(context.Context, model.ProceduralTrace) error {
	f.inserts++
	return errors.New("database is gone")
}
func (f *failingTraceStore) ListByTask(context.Context, string, string, int) ([]model.ProceduralTrace, error) {
	return nil, errors.New("database is gone")
}

func newSQLiteProcedural(t *testing.T) *memory.ProceduralMemory {
	t.Helper()
	ctx := context.Background()
	db, err := gormdb.OpenSQLite(ctx, nil, filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(ctx, db, gormstore.SQLite))
	store := gormstore.New(db, gormstore.SQLite)
	t.Cleanup(func() { _ = store.Close() })
	return memory.NewProceduralMemory(store)
}

func TestLogStepThenListByTask(t *testing.T) {
	p := newSQLiteProcedural(t)
	ctx := context.Background()

	out := p.LogStep(ctx, memory.Step{
		UserID:     "u1",
		AgentID:    "supervisor",
		TaskID:     "task-1",
		Step:       1,
		Input:      "input text",
		Output:     "output text",
		ToolsUsed:  map[string]any{"tool": "demo"},
		DurationMS: 42,
	})
	require.NoError(t, out.Err)

	traces, err := p.ListByTask(ctx, "task-1", "", 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, out.Value, traces[0].ID)
	assert.Equal(t, 1, traces[0].Step)
	assert.Equal(t, "input text", traces[0].InputText)
	assert.Equal(t, "output text", traces[0].OutputText)
	assert.Equal(t, map[string]any{"tool": "demo"}, traces[0].ToolsUsed)
	assert.Equal(t, int64(42), traces[0].DurationMS)
}

func TestLogStep_FailureNeverPropagates(t *testing.T) {
	store := &failingTraceStore{}
	p := memory.NewProceduralMemory(store)

	var out memory.Outcome[uuid.UUID]
	require.NotPanics(t, func() {
		out = p.LogStep(context.Background(), memory.Step{TaskID: "t1", Step: 1})
	})
	assert.Error(t, out.Err)
	assert.Equal(t, 1, store.inserts)

	_, err := p.ListByTask(context.Background(), "t1", "", 10)
	assert.Error(t, err)
}

func TestLogStep_NilStoreIsDisabled(t *testing.T) {
	p := memory.NewProceduralMemory(nil)
	out := p.LogStep(context.Background(), memory.Step{TaskID: "t1"})
	assert.True(t, out.Skipped)
	assert.NoError(t, out.Err)

	traces, err := p.ListByTask(context.Background(), "t1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestTrack_LogsOutcomeAndReturnsResult(t *testing.T) {
	p := newSQLiteProcedural(t)
	ctx := context.Background()

	got, err := p.Track(ctx, memory.Step{TaskID: "task-2", Step: 1, Input: "q"}, func(context.Context) (string, error) {
		return "answer", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	tools := map[string]any{"tool": "search"}
	boom := errors.New("tool exploded")
	_, err = p.Track(ctx, memory.Step{TaskID: "task-2", Step: 2, ToolsUsed: tools}, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]any{"tool": "search"}, tools)

	traces, err := p.ListByTask(ctx, "task-2", "", 10)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	byStep := map[int]model.ProceduralTrace{}
	for _, tr := range traces {
		byStep[tr.Step] = tr
	}
	assert.Equal(t, "answer", byStep[1].OutputText)
	assert.Equal(t, "tool exploded", byStep[2].OutputText)
	assert.Equal(t, true, byStep[2].ToolsUsed["error"])
	assert.GreaterOrEqual(t, byStep[1].DurationMS, int64(0))
}

func TestTrack_StoreFailureDoesNotChangeResult(t *testing.T) {
	p := memory.NewProceduralMemory(&failingTraceStore{})
	got, err := p.Track(context.Background(), memory.Step{TaskID: "t"}, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestClose_DisablesLogging(t *testing.T) {
	p := newSQLiteProcedural(t)
	ctx := context.Background()

	require.NoError(t, p.LogStep(ctx, memory.Step{TaskID: "t1", Step: 1}).Err)
	p.Close()

	out := p.LogStep(ctx, memory.Step{TaskID: "t1", Step: 2})
	assert.True(t, out.Skipped)
	traces, err := p.ListByTask(ctx, "t1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, traces)
}
