package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/plugin/trace/tracetest"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/misteriosai/agent-memory/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTraceStore(t *testing.T) {
	tracetest.Run(t, func(t *testing.T) registrytrace.TraceStore {
		ctx := context.Background()
		db, err := gormdb.OpenSQLite(ctx, nil, filepath.Join(t.TempDir(), "traces.db"))
		require.NoError(t, err)
		require.NoError(t, Migrate(ctx, db, SQLite))
		s := New(db, SQLite)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPostgresTraceStore(t *testing.T) {
	dsn := testpg.StartPostgres(t)
	tracetest.Run(t, func(t *testing.T) registrytrace.TraceStore {
		ctx := context.Background()
		db, err := gormdb.OpenPostgres(ctx, nil, dsn)
		require.NoError(t, err)
		require.NoError(t, db.Exec("DROP TABLE IF EXISTS procedural_traces").Error)
		require.NoError(t, Migrate(ctx, db, Postgres))
		s := New(db, Postgres)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMigrator_SkipsOtherDatastores(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "mongo"
	require.NoError(t, (&traceMigrator{}).Migrate(config.WithContext(context.Background(), &cfg)))
}

func TestSQLiteLoaderAfterMigration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = SQLite
	cfg.VectorType = "chromem"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "memory.db")
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrytrace.Select(SQLite)
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Equal(t, SQLite, store.Name())
	require.NoError(t, store.Insert(ctx, tracetest.Trace("t1", "u1", 1, tracetest.Now())))
	traces, err := store.ListByTask(ctx, "t1", "u1", 10)
	require.NoError(t, err)
	assert.Len(t, traces, 1)
}

func TestSchemaFor_RejectsUnknownDialect(t *testing.T) {
	_, err := schemaFor("oracle")
	assert.Error(t, err)
}
