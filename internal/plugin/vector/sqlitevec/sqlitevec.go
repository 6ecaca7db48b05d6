// Package sqlitevec stores semantic entries in a local sqlite file and ranks
// them with the sqlite-vec extension's vec_distance_cosine.
package sqlitevec

import (
	"context"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/model"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

const insertBatchSize = 500

type sqlitevecMigrator struct{}

func (m *sqlitevecMigrator) Name() string { return "sqlitevec" }
func (m *sqlitevecMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "sqlitevec" {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "path", cfg.ResolvedSQLitePath())
	db, err := gormdb.OpenSQLite(ctx, cfg, cfg.ResolvedSQLitePath())
	if err != nil {
		return fmt.Errorf("sqlitevec migrate: %w", err)
	}
	defer gormdb.Close(db)
	return Migrate(ctx, db)
}

// Migrate creates the semantic_items table on db.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(schemaSQL).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "sqlitevec",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &sqlitevecMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("sqlitevec: missing config in context")
	}
	db, err := gormdb.OpenSQLite(ctx, cfg, cfg.ResolvedSQLitePath())
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: %w", err)
	}
	return New(db, cfg.VectorDimension), nil
}

// New wraps an open sqlite handle whose schema is already migrated.
func New(db *gorm.DB, dimension int) *SQLiteVecStore {
	return &SQLiteVecStore{db: db, dimension: dimension}
}

// SQLiteVecStore implements VectorStore on sqlite with sqlite-vec.
type SQLiteVecStore struct {
	db        *gorm.DB
	dimension int
}

type semanticRow struct {
	ID             uuid.UUID      `gorm:"primaryKey;type:text"`
	UserID         *string        `gorm:"column:user_id"`
	AgentID        *string        `gorm:"column:agent_id"`
	ConversationID *string        `gorm:"column:conversation_id"`
	Text           string         `gorm:"column:text"`
	Meta           map[string]any `gorm:"column:meta;type:text;serializer:json"`
	Embedding      []byte         `gorm:"column:embedding;type:blob"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
}

func (semanticRow) TableName() string { return "semantic_items" }

func (s *SQLiteVecStore) Name() string { return "sqlitevec" }
func (s *SQLiteVecStore) Close() error { return gormdb.Close(s.db) }

func (s *SQLiteVecStore) Add(ctx context.Context, req registryvector.AddRequest) ([]uuid.UUID, error) {
	if req.Empty() {
		return nil, nil
	}
	if err := req.Validate(s.dimension); err != nil {
		return nil, err
	}
	entries := req.Entries(time.Now().UTC())
	rows := make([]semanticRow, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("sqlitevec serialize: %w", err)
		}
		rows[i] = semanticRow{
			ID:             e.ID,
			UserID:         model.Nullable(e.UserID),
			AgentID:        model.Nullable(e.AgentID),
			ConversationID: model.Nullable(e.ConversationID),
			Text:           e.Text,
			Meta:           e.Meta,
			Embedding:      blob,
			CreatedAt:      e.CreatedAt,
		}
		ids[i] = e.ID
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitevec add: %w", err)
	}
	return ids, nil
}

func (s *SQLiteVecStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.TopK <= 0 {
		return []registryvector.SearchResult{}, nil
	}
	if err := registryvector.ValidateQuery(req.Vector, s.dimension); err != nil {
		return nil, err
	}
	query, err := sqlite_vec.SerializeFloat32(req.Vector)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec serialize: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, agent_id, conversation_id, text, meta, embedding, created_at,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM semantic_items`)
	args := []any{query}
	var where []string
	if req.Filters.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, req.Filters.UserID)
	}
	if req.Filters.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, req.Filters.AgentID)
	}
	if req.Filters.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, req.Filters.ConversationID)
	}
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\n\t\tORDER BY distance, created_at, id\n\t\tLIMIT ?")
	args = append(args, req.TopK)

	rows, err := s.db.WithContext(ctx).Raw(sb.String(), args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("sqlitevec search: %w", err)
	}
	defer rows.Close()

	results := []registryvector.SearchResult{}
	for rows.Next() {
		var r registryvector.SearchResult
		var id string
		var userID, agentID, conversationID *string
		var metaRaw string
		var blob []byte
		var distance float64
		if err := rows.Scan(&id, &userID, &agentID, &conversationID, &r.Text, &metaRaw, &blob, &r.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("sqlitevec scan: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlitevec scan: id %q: %w", id, err)
		}
		r.UserID = model.Deref(userID)
		r.AgentID = model.Deref(agentID)
		r.ConversationID = model.Deref(conversationID)
		r.Meta = map[string]any{}
		if metaRaw != "" {
			if err := json.Unmarshal([]byte(metaRaw), &r.Meta); err != nil {
				log.Warn("sqlitevec: invalid meta", "id", r.ID, "err", err)
			}
		}
		r.Embedding = decodeFloat32(blob)
		r.Score = 1 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitevec search: %w", err)
	}
	return results, nil
}

// decodeFloat32 reverses sqlite_vec.SerializeFloat32.
func decodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

var _ registryvector.VectorStore = (*SQLiteVecStore)(nil)
