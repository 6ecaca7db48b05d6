// Package vectortest holds the behaviour every VectorStore backend must share.
package vectortest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/misteriosai/agent-memory/internal/model"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/stretchr/testify/require"
)

// Dimension is the vector size stores under test must be configured with.
const Dimension = 4

// Factory returns an empty store configured with Dimension.
type Factory func(t *testing.T) registryvector.VectorStore

// Run executes the shared suite, each case against a fresh store.
func Run(t *testing.T, newStore Factory) {
	t.Run("SearchEmptyStore", func(t *testing.T) { testSearchEmptyStore(t, newStore(t)) })
	t.Run("AddEmptyIsNoop", func(t *testing.T) { testAddEmptyIsNoop(t, newStore(t)) })
	t.Run("AddMismatchPersistsNothing", func(t *testing.T) { testAddMismatchPersistsNothing(t, newStore(t)) })
	t.Run("AddWrongDimensionPersistsNothing", func(t *testing.T) { testAddWrongDimension(t, newStore(t)) })
	t.Run("RanksByCosineSimilarity", func(t *testing.T) { testRanking(t, newStore(t)) })
	t.Run("TopKCapsResults", func(t *testing.T) { testTopK(t, newStore(t)) })
	t.Run("FiltersAreConjunctive", func(t *testing.T) { testFilters(t, newStore(t)) })
	t.Run("TiesFollowInsertionOrder", func(t *testing.T) { testTies(t, newStore(t)) })
	t.Run("MetadataRoundTrips", func(t *testing.T) { testMetadata(t, newStore(t)) })
}

func search(t *testing.T, s registryvector.VectorStore, vec []float32, k int, f registryvector.Filters) []registryvector.SearchResult {
	t.Helper()
	results, err := s.Search(context.Background(), registryvector.SearchRequest{Vector: vec, TopK: k, Filters: f})
	require.NoError(t, err)
	return results
}

func texts(results []registryvector.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

func add(t *testing.T, s registryvector.VectorStore, scope model.Scope, items map[string][]float32, order ...string) {
	t.Helper()
	req := registryvector.AddRequest{Scope: scope}
	for _, text := range order {
		req.Texts = append(req.Texts, text)
		req.Vectors = append(req.Vectors, items[text])
	}
	ids, err := s.Add(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, ids, len(order))
}

func testSearchEmptyStore(t *testing.T, s registryvector.VectorStore) {
	results := search(t, s, []float32{1, 0, 0, 0}, 3, registryvector.Filters{UserID: "nobody"})
	require.Empty(t, results)
	results = search(t, s, []float32{1, 0, 0, 0}, 3, registryvector.Filters{})
	require.Empty(t, results)
}

func testAddEmptyIsNoop(t *testing.T, s registryvector.VectorStore) {
	ids, err := s.Add(context.Background(), registryvector.AddRequest{})
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = s.Add(context.Background(), registryvector.AddRequest{Texts: []string{"a"}})
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = s.Add(context.Background(), registryvector.AddRequest{Vectors: [][]float32{{1, 0, 0, 0}}})
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Empty(t, search(t, s, []float32{1, 0, 0, 0}, 10, registryvector.Filters{}))
}

func testAddMismatchPersistsNothing(t *testing.T, s registryvector.VectorStore) {
	_, err := s.Add(context.Background(), registryvector.AddRequest{
		Texts:   []string{"a", "b"},
		Vectors: [][]float32{{1, 0, 0, 0}},
	})
	var verr *registryvector.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	require.Empty(t, search(t, s, []float32{1, 0, 0, 0}, 10, registryvector.Filters{}))
}

func testAddWrongDimension(t *testing.T, s registryvector.VectorStore) {
	_, err := s.Add(context.Background(), registryvector.AddRequest{
		Texts:   []string{"a", "b"},
		Vectors: [][]float32{{1, 0, 0, 0}, {1, 0}},
	})
	var verr *registryvector.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	require.Empty(t, search(t, s, []float32{1, 0, 0, 0}, 10, registryvector.Filters{}))
}

func testRanking(t *testing.T, s registryvector.VectorStore) {
	add(t, s, model.Scope{}, map[string][]float32{
		"east":      {1, 0, 0, 0},
		"north":     {0, 1, 0, 0},
		"northeast": {0.9, 0.1, 0, 0},
	}, "north", "northeast", "east")

	results := search(t, s, []float32{1, 0, 0, 0}, 3, registryvector.Filters{})
	require.Equal(t, []string{"east", "northeast", "north"}, texts(results))
	require.InDelta(t, 1.0, results[0].Score, 1e-4)
	require.InDelta(t, 0.0, results[2].Score, 1e-4)
	require.Greater(t, results[1].Score, results[2].Score)
	require.NotEqual(t, results[0].ID, results[1].ID)
}

func testTopK(t *testing.T, s registryvector.VectorStore) {
	add(t, s, model.Scope{}, map[string][]float32{
		"a": {1, 0, 0, 0},
		"b": {1, 1, 0, 0},
		"c": {1, 1, 1, 0},
		"d": {1, 1, 1, 1},
		"e": {0, 0, 0, 1},
	}, "a", "b", "c", "d", "e")

	require.Len(t, search(t, s, []float32{1, 0, 0, 0}, 3, registryvector.Filters{}), 3)
	require.Len(t, search(t, s, []float32{1, 0, 0, 0}, 50, registryvector.Filters{}), 5)
	require.Empty(t, search(t, s, []float32{1, 0, 0, 0}, 0, registryvector.Filters{}))
}

func testFilters(t *testing.T, s registryvector.VectorStore) {
	vec := map[string][]float32{
		"u1-a1-c1": {1, 0, 0, 0},
		"u1-a2-c1": {1, 0, 0, 0},
		"u2-a1-c2": {1, 0, 0, 0},
		"unscoped": {1, 0, 0, 0},
	}
	add(t, s, model.Scope{UserID: "u1", AgentID: "a1", ConversationID: "c1"}, vec, "u1-a1-c1")
	add(t, s, model.Scope{UserID: "u1", AgentID: "a2", ConversationID: "c1"}, vec, "u1-a2-c1")
	add(t, s, model.Scope{UserID: "u2", AgentID: "a1", ConversationID: "c2"}, vec, "u2-a1-c2")
	add(t, s, model.Scope{}, vec, "unscoped")

	q := []float32{1, 0, 0, 0}
	require.ElementsMatch(t, []string{"u1-a1-c1", "u1-a2-c1"}, texts(search(t, s, q, 10, registryvector.Filters{UserID: "u1"})))
	require.ElementsMatch(t, []string{"u1-a1-c1", "u2-a1-c2"}, texts(search(t, s, q, 10, registryvector.Filters{AgentID: "a1"})))
	require.Equal(t, []string{"u1-a1-c1"}, texts(search(t, s, q, 10, registryvector.Filters{UserID: "u1", AgentID: "a1"})))
	require.Equal(t, []string{"u2-a1-c2"}, texts(search(t, s, q, 10, registryvector.Filters{ConversationID: "c2"})))
	require.Empty(t, search(t, s, q, 10, registryvector.Filters{UserID: "u2", ConversationID: "c1"}))
	require.Len(t, search(t, s, q, 10, registryvector.Filters{}), 4)

	for _, r := range search(t, s, q, 10, registryvector.Filters{UserID: "u1"}) {
		require.Equal(t, "u1", r.UserID)
		require.Equal(t, "c1", r.ConversationID)
	}
}

func testTies(t *testing.T, s registryvector.VectorStore) {
	vec := map[string][]float32{"first": {0, 0, 1, 0}, "second": {0, 0, 1, 0}, "third": {0, 0, 1, 0}}
	add(t, s, model.Scope{}, vec, "first")
	time.Sleep(5 * time.Millisecond)
	add(t, s, model.Scope{}, vec, "second")
	time.Sleep(5 * time.Millisecond)
	add(t, s, model.Scope{}, vec, "third")

	q := []float32{0, 0, 1, 0}
	want := []string{"first", "second", "third"}
	for i := 0; i < 3; i++ {
		require.Equal(t, want, texts(search(t, s, q, 10, registryvector.Filters{})))
	}
}

func testMetadata(t *testing.T, s registryvector.VectorStore) {
	_, err := s.Add(context.Background(), registryvector.AddRequest{
		Texts:     []string{"hello world", "agent reply"},
		Vectors:   [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		Metadatas: []map[string]any{{"role": "user"}},
		Scope:     model.Scope{AgentID: "supervisor"},
	})
	require.NoError(t, err)

	results := search(t, s, []float32{1, 0, 0, 0}, 2, registryvector.Filters{AgentID: "supervisor"})
	require.Len(t, results, 2)
	require.Equal(t, "hello world", results[0].Text)
	require.Equal(t, "user", results[0].Meta["role"])
	require.NotNil(t, results[1].Meta)
	require.Equal(t, "supervisor", results[1].AgentID)
	require.False(t, results[0].CreatedAt.IsZero())
}
