package pgvector

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/model"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// insertBatchSize keeps each INSERT well under postgres' 65535 bind parameters
// (eight per row).
const insertBatchSize = 1000

//go:embed db/schema.sql
var schemaTemplate string

// SchemaSQL renders the semantic_items schema for the given vector dimension.
func SchemaSQL(dimension int) string {
	return strings.ReplaceAll(schemaTemplate, "{{DIMENSION}}", strconv.Itoa(dimension))
}

// pgvectorMigrator implements migrate.Migrator for the pgvector schema.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "dimension", cfg.VectorDimension)
	db, err := gormdb.OpenPostgres(ctx, nil, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	defer gormdb.Close(db)
	return db.WithContext(ctx).Exec(SchemaSQL(cfg.VectorDimension)).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := gormdb.OpenPostgres(ctx, cfg, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &PgvectorStore{db: db, dimension: cfg.VectorDimension}, nil
}

// PgvectorStore implements VectorStore using the pgvector extension.
type PgvectorStore struct {
	db        *gorm.DB
	dimension int
}

type semanticRow struct {
	ID             uuid.UUID      `gorm:"primaryKey;type:uuid"`
	UserID         *string        `gorm:"column:user_id"`
	AgentID        *string        `gorm:"column:agent_id"`
	ConversationID *string        `gorm:"column:conversation_id"`
	Text           string         `gorm:"column:text"`
	Meta           map[string]any `gorm:"column:meta;type:jsonb;serializer:json"`
	Embedding      pgvec.Vector   `gorm:"column:embedding;type:vector"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
}

func (semanticRow) TableName() string { return "semantic_items" }

func (s *PgvectorStore) Name() string { return "pgvector" }
func (s *PgvectorStore) Close() error { return gormdb.Close(s.db) }

func (s *PgvectorStore) Add(ctx context.Context, req registryvector.AddRequest) ([]uuid.UUID, error) {
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
		rows[i] = semanticRow{
			ID:             e.ID,
			UserID:         model.Nullable(e.UserID),
			AgentID:        model.Nullable(e.AgentID),
			ConversationID: model.Nullable(e.ConversationID),
			Text:           e.Text,
			Meta:           e.Meta,
			Embedding:      pgvec.NewVector(e.Embedding),
			CreatedAt:      e.CreatedAt,
		}
		ids[i] = e.ID
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector add: %w", err)
	}
	return ids, nil
}

func (s *PgvectorStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.TopK <= 0 {
		return []registryvector.SearchResult{}, nil
	}
	if err := registryvector.ValidateQuery(req.Vector, s.dimension); err != nil {
		return nil, err
	}

	vec := pgvec.NewVector(req.Vector)
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, agent_id, conversation_id, text, meta, embedding, created_at,
		       embedding <=> ?::vector AS distance
		FROM semantic_items`)
	args := []any{vec}
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
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	results := []registryvector.SearchResult{}
	for rows.Next() {
		var r registryvector.SearchResult
		var userID, agentID, conversationID *string
		var metaRaw []byte
		var embedding pgvec.Vector
		var distance float64
		if err := rows.Scan(&r.ID, &userID, &agentID, &conversationID, &r.Text, &metaRaw, &embedding, &r.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		r.UserID = model.Deref(userID)
		r.AgentID = model.Deref(agentID)
		r.ConversationID = model.Deref(conversationID)
		r.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &r.Meta); err != nil {
				log.Warn("pgvector: invalid meta", "id", r.ID, "err", err)
			}
		}
		r.Embedding = embedding.Slice()
		r.Score = 1 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	return results, nil
}

var _ registryvector.VectorStore = (*PgvectorStore)(nil)
