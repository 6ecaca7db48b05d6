package vector

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAddRequestValidate_LengthMismatch(t *testing.T) {
	req := AddRequest{
		Texts:   []string{"a", "b"},
		Vectors: [][]float32{{1, 0}},
	}
	err := req.Validate(2)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "vectors", verr.Field)
}

func TestAddRequestEmpty_EitherSideEmpty(t *testing.T) {
	require.True(t, AddRequest{}.Empty())
	require.True(t, AddRequest{Texts: []string{"a"}}.Empty())
	require.True(t, AddRequest{Vectors: [][]float32{{1, 0}}}.Empty())
	require.False(t, AddRequest{Texts: []string{"a"}, Vectors: [][]float32{{1, 0}}}.Empty())
}

func TestAddRequestValidate_Dimension(t *testing.T) {
	req := AddRequest{
		Texts:   []string{"a", "b"},
		Vectors: [][]float32{{1, 0}, {1, 0, 0}},
	}
	err := req.Validate(2)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "vectors[1]", verr.Field)

	require.NoError(t, req.Validate(0))
}

func TestAddRequestEntries_DefaultsMetadata(t *testing.T) {
	now := time.Now()
	req := AddRequest{
		Texts:     []string{"a", "b"},
		Vectors:   [][]float32{{1, 0}, {0, 1}},
		Metadatas: []map[string]any{{"role": "user"}},
		Scope:     model.Scope{UserID: "u1", AgentID: "supervisor"},
	}
	entries := req.Entries(now)
	require.Len(t, entries, 2)
	require.Equal(t, "user", entries[0].Meta["role"])
	require.NotNil(t, entries[1].Meta)
	require.Empty(t, entries[1].Meta)
	require.NotEqual(t, entries[0].ID, entries[1].ID)
	require.Equal(t, "u1", entries[1].UserID)
	require.Equal(t, "supervisor", entries[1].AgentID)
	require.Equal(t, now, entries[0].CreatedAt)
}

func TestFiltersMatches(t *testing.T) {
	e := model.SemanticMemoryEntry{UserID: "u1", AgentID: "a1"}
	require.True(t, Filters{}.Matches(e))
	require.True(t, Filters{UserID: "u1", AgentID: "a1"}.Matches(e))
	require.False(t, Filters{UserID: "u2"}.Matches(e))
	require.False(t, Filters{ConversationID: "c1"}.Matches(e))
}

func TestSortResults_TiesAreStable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := SearchResult{SemanticMemoryEntry: model.SemanticMemoryEntry{ID: uuid.New(), Text: "older", CreatedAt: base}, Score: 0.5}
	newer := SearchResult{SemanticMemoryEntry: model.SemanticMemoryEntry{ID: uuid.New(), Text: "newer", CreatedAt: base.Add(time.Second)}, Score: 0.5}
	best := SearchResult{SemanticMemoryEntry: model.SemanticMemoryEntry{ID: uuid.New(), Text: "best", CreatedAt: base}, Score: 0.9}

	results := []SearchResult{newer, older, best}
	SortResults(results)
	require.Equal(t, []string{"best", "older", "newer"}, []string{results[0].Text, results[1].Text, results[2].Text})
}
