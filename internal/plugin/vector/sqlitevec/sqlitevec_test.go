package sqlitevec

import (
	"context"
	"path/filepath"
	"testing"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/plugin/vector/vectortest"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteVecStore {
	t.Helper()
	ctx := context.Background()
	db, err := gormdb.OpenSQLite(ctx, nil, filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	s := New(db, vectortest.Dimension)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteVecStore(t *testing.T) {
	vectortest.Run(t, func(t *testing.T) registryvector.VectorStore { return openStore(t) })
}

func TestDecodeFloat32_ReversesSerialize(t *testing.T) {
	in := []float32{0.25, -1.5, 3, 0}
	blob, err := sqlite_vec.SerializeFloat32(in)
	require.NoError(t, err)
	require.Equal(t, in, decodeFloat32(blob))
}

func TestMigrator_CreatesSchemaThenLoads(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.VectorType = "sqlitevec"
	cfg.DatastoreType = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "memory.db")
	cfg.VectorDimension = vectortest.Dimension
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registryvector.Select("sqlitevec")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	results, err := store.Search(ctx, registryvector.SearchRequest{Vector: []float32{1, 0, 0, 0}, TopK: 1})
	require.NoError(t, err)
	require.Empty(t, results)
}
