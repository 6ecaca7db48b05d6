package mongo

import (
	"context"
	"fmt"
	"testing"

	"github.com/misteriosai/agent-memory/internal/plugin/trace/tracetest"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/misteriosai/agent-memory/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestMongoTraceStore(t *testing.T) {
	uri := testmongo.StartMongo(t)
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	n := 0
	tracetest.Run(t, func(t *testing.T) registrytrace.TraceStore {
		n++
		db := client.Database(fmt.Sprintf("agent_memory_test_%d", n))
		require.NoError(t, EnsureIndexes(context.Background(), db))
		return New(nil, db)
	})
}
