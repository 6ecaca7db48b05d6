package pgvector

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/plugin/vector/vectortest"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaSQL_RendersDimension(t *testing.T) {
	sql := SchemaSQL(768)
	assert.Contains(t, sql, "vector(768)")
	assert.False(t, strings.Contains(sql, "{{DIMENSION}}"))
}

func newTestStore(t *testing.T, dsn string) *PgvectorStore {
	t.Helper()
	db, err := gormdb.OpenPostgres(context.Background(), nil, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Exec("DROP TABLE IF EXISTS semantic_items").Error)
	require.NoError(t, db.Exec(SchemaSQL(vectortest.Dimension)).Error)
	s := &PgvectorStore{db: db, dimension: vectortest.Dimension}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPgvectorStore(t *testing.T) {
	dsn := testpg.StartPostgres(t)
	vectortest.Run(t, func(t *testing.T) registryvector.VectorStore {
		return newTestStore(t, dsn)
	})

	t.Run("AddBeyondBindParameterLimit", func(t *testing.T) {
		s := newTestStore(t, dsn)
		const n = 9000
		req := registryvector.AddRequest{
			Texts:   make([]string, n),
			Vectors: make([][]float32, n),
		}
		for i := range n {
			req.Texts[i] = fmt.Sprintf("chunk %d", i)
			req.Vectors[i] = []float32{1, float32(i), 0, 0}
		}
		ids, err := s.Add(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, ids, n)

		var count int64
		require.NoError(t, s.db.Table("semantic_items").Count(&count).Error)
		require.EqualValues(t, n, count)
	})
}
