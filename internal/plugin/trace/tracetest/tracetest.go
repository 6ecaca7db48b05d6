// Package tracetest holds the behaviour every TraceStore backend must share.
package tracetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/model"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store.
type Factory func(t *testing.T) registrytrace.TraceStore

// Run executes the shared suite, each case against a fresh store.
func Run(t *testing.T, newStore Factory) {
	t.Run("ListUnknownTaskIsEmpty", func(t *testing.T) { testListUnknownTask(t, newStore(t)) })
	t.Run("InsertThenListRoundTrips", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("NewestFirstWithLimit", func(t *testing.T) { testNewestFirst(t, newStore(t)) })
	t.Run("UserFilter", func(t *testing.T) { testUserFilter(t, newStore(t)) })
	t.Run("NonPositiveLimitUsesDefault", func(t *testing.T) { testDefaultLimit(t, newStore(t)) })
}

// Trace builds a trace with a fresh id at the given time.
func Trace(taskID, userID string, step int, at time.Time) model.ProceduralTrace {
	return model.ProceduralTrace{
		ID:         uuid.New(),
		UserID:     userID,
		TaskID:     taskID,
		Step:       step,
		InputText:  "in",
		OutputText: "out",
		ToolsUsed:  map[string]any{},
		CreatedAt:  at,
	}
}

func insert(t *testing.T, s registrytrace.TraceStore, traces ...model.ProceduralTrace) {
	t.Helper()
	for _, tr := range traces {
		require.NoError(t, s.Insert(context.Background(), tr))
	}
}

func steps(traces []model.ProceduralTrace) []int {
	out := make([]int, len(traces))
	for i, tr := range traces {
		out[i] = tr.Step
	}
	return out
}

func testListUnknownTask(t *testing.T, s registrytrace.TraceStore) {
	traces, err := s.ListByTask(context.Background(), "missing", "", 10)
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func testRoundTrip(t *testing.T, s registrytrace.TraceStore) {
	at := Now()
	in := model.ProceduralTrace{
		ID:         uuid.New(),
		UserID:     "u1",
		AgentID:    "planner",
		TaskID:     "t1",
		Step:       1,
		InputText:  "q",
		OutputText: "a",
		ToolsUsed:  map[string]any{"search": map[string]any{"hits": float64(3)}},
		DurationMS: 12,
		CreatedAt:  at,
	}
	insert(t, s, in)

	traces, err := s.ListByTask(context.Background(), "t1", "", 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	got := traces[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "planner", got.AgentID)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, "q", got.InputText)
	assert.Equal(t, "a", got.OutputText)
	assert.Equal(t, in.ToolsUsed, got.ToolsUsed)
	assert.Equal(t, int64(12), got.DurationMS)
	assert.WithinDuration(t, at, got.CreatedAt, time.Millisecond)
}

func testNewestFirst(t *testing.T, s registrytrace.TraceStore) {
	base := Now()
	for i := 1; i <= 5; i++ {
		insert(t, s, Trace("t1", "", i, base.Add(time.Duration(i)*time.Second)))
	}
	insert(t, s, Trace("other", "", 99, base.Add(time.Minute)))

	traces, err := s.ListByTask(context.Background(), "t1", "", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3}, steps(traces))
}

func testUserFilter(t *testing.T, s registrytrace.TraceStore) {
	base := Now()
	insert(t, s,
		Trace("t1", "u1", 1, base),
		Trace("t1", "u2", 2, base.Add(time.Second)),
		Trace("t1", "", 3, base.Add(2*time.Second)),
	)

	traces, err := s.ListByTask(context.Background(), "t1", "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, steps(traces))

	traces, err = s.ListByTask(context.Background(), "t1", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, steps(traces))
}

func testDefaultLimit(t *testing.T, s registrytrace.TraceStore) {
	base := Now()
	for i := 0; i < registrytrace.DefaultListLimit+2; i++ {
		insert(t, s, Trace("bulk", "", i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	traces, err := s.ListByTask(context.Background(), "bulk", "", 0)
	require.NoError(t, err)
	assert.Len(t, traces, registrytrace.DefaultListLimit)
	assert.Equal(t, registrytrace.DefaultListLimit+1, traces[0].Step)
}

// Now is the current time at the precision every backend preserves.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
