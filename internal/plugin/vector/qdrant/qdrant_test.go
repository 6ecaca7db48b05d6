package qdrant

import (
	"context"
	"fmt"
	"testing"

	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/plugin/vector/vectortest"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/testutil/testqdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestQdrantStore(t *testing.T) {
	addr := testqdrant.StartQdrant(t)
	n := 0
	vectortest.Run(t, func(t *testing.T) registryvector.VectorStore {
		n++
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.NoError(t, err)
		name := fmt.Sprintf("semantic_items_test_%d", n)
		require.NoError(t, EnsureCollection(context.Background(), conn, name, vectortest.Dimension))
		s := New(conn, name, vectortest.Dimension)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestEffectiveCollectionName(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "semantic_items_1024", effectiveCollectionName(&cfg))
	cfg.QdrantCollectionName = " custom "
	assert.Equal(t, "custom", effectiveCollectionName(&cfg))
}

func TestDialOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Len(t, dialOptions(&cfg), 1)
	cfg.QdrantAPIKey = "secret"
	assert.Len(t, dialOptions(&cfg), 2)

	md, err := apiKeyCredentials{apiKey: "secret"}.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api-key": "secret"}, md)
}
