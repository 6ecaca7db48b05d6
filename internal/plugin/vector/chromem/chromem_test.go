package chromem

import (
	"context"
	"testing"

	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/model"
	"github.com/misteriosai/agent-memory/internal/plugin/vector/vectortest"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/require"
)

func TestChromemStore(t *testing.T) {
	vectortest.Run(t, func(t *testing.T) registryvector.VectorStore {
		s, err := New("", vectortest.Dimension)
		require.NoError(t, err)
		return s
	})
}

func TestChromemStore_PersistsToDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, vectortest.Dimension)
	require.NoError(t, err)

	_, err = s.Add(context.Background(), registryvector.AddRequest{
		Texts:   []string{"kept"},
		Vectors: [][]float32{{1, 0, 0, 0}},
		Scope:   model.Scope{UserID: "u1"},
	})
	require.NoError(t, err)

	reopened, err := New(dir, vectortest.Dimension)
	require.NoError(t, err)
	results, err := reopened.Search(context.Background(), registryvector.SearchRequest{
		Vector:  []float32{1, 0, 0, 0},
		TopK:    1,
		Filters: registryvector.Filters{UserID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "kept", results[0].Text)
}

func TestChromemStore_CancelledAddStoresNothing(t *testing.T) {
	s, err := New("", vectortest.Dimension)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ids, err := s.Add(ctx, registryvector.AddRequest{
		Texts:   []string{"a", "b"},
		Vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ids)
	require.Equal(t, 0, s.collection.Count())
}

func TestChromemStore_RollbackRemovesDocuments(t *testing.T) {
	s, err := New("", vectortest.Dimension)
	require.NoError(t, err)

	docs := []chromem.Document{
		{ID: "00000000-0000-0000-0000-000000000001", Content: "a", Embedding: []float32{1, 0, 0, 0}},
		{ID: "00000000-0000-0000-0000-000000000002", Content: "b", Embedding: []float32{0, 1, 0, 0}},
	}
	require.NoError(t, s.collection.AddDocuments(context.Background(), docs, 1))
	require.Equal(t, 2, s.collection.Count())

	s.rollback(docs)
	require.Equal(t, 0, s.collection.Count())
}

func TestLoad_UsesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.VectorDimension = 8
	store, err := load(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)
	require.Equal(t, "chromem", store.Name())
}
