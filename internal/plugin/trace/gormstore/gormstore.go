// Package gormstore keeps procedural traces in postgres or sqlite through gorm.
package gormstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/model"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"gorm.io/gorm"
)

var (
	//go:embed db/postgres.sql
	postgresSchema string
	//go:embed db/sqlite.sql
	sqliteSchema string
)

// Dialects supported by this store.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

func schemaFor(dialect string) (string, error) {
	switch dialect {
	case Postgres:
		return postgresSchema, nil
	case SQLite:
		return sqliteSchema, nil
	}
	return "", fmt.Errorf("gormstore: unsupported dialect %q", dialect)
}

// Migrate creates the procedural_traces table for dialect on db.
func Migrate(ctx context.Context, db *gorm.DB, dialect string) error {
	schema, err := schemaFor(dialect)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(schema).Error
}

type traceMigrator struct{}

func (m *traceMigrator) Name() string { return "procedural-traces" }
func (m *traceMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != Postgres && cfg.DatastoreType != SQLite {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "datastore", cfg.DatastoreType)
	db, err := open(ctx, nil, cfg, cfg.DatastoreType)
	if err != nil {
		return fmt.Errorf("trace migrate: %w", err)
	}
	defer gormdb.Close(db)
	return Migrate(ctx, db, cfg.DatastoreType)
}

func init() {
	for _, dialect := range []string{Postgres, SQLite} {
		registrytrace.Register(registrytrace.Plugin{
			Name: dialect,
			Loader: func(ctx context.Context) (registrytrace.TraceStore, error) {
				cfg := config.FromContext(ctx)
				if cfg == nil {
					return nil, fmt.Errorf("%s trace store: missing config in context", dialect)
				}
				db, err := open(ctx, cfg, cfg, dialect)
				if err != nil {
					return nil, err
				}
				return New(db, dialect), nil
			},
		})
	}
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &traceMigrator{}})
}

// open connects for dialect. poolCfg is nil for short-lived migration handles.
func open(ctx context.Context, poolCfg, cfg *config.Config, dialect string) (*gorm.DB, error) {
	if dialect == SQLite {
		return gormdb.OpenSQLite(ctx, poolCfg, cfg.ResolvedSQLitePath())
	}
	return gormdb.OpenPostgres(ctx, poolCfg, cfg.DBURL)
}

// New wraps an open, migrated handle.
func New(db *gorm.DB, dialect string) *GormTraceStore {
	return &GormTraceStore{db: db, dialect: dialect}
}

// GormTraceStore implements TraceStore with gorm.
type GormTraceStore struct {
	db      *gorm.DB
	dialect string
}

type traceRow struct {
	ID         uuid.UUID      `gorm:"primaryKey"`
	UserID     *string        `gorm:"column:user_id"`
	AgentID    *string        `gorm:"column:agent_id"`
	TaskID     *string        `gorm:"column:task_id"`
	Step       int            `gorm:"column:step"`
	InputText  string         `gorm:"column:input_text"`
	OutputText string         `gorm:"column:output_text"`
	ToolsUsed  map[string]any `gorm:"column:tools_used;serializer:json"`
	DurationMS int64          `gorm:"column:duration_ms"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (traceRow) TableName() string { return "procedural_traces" }

func (s *GormTraceStore) Name() string { return s.dialect }
func (s *GormTraceStore) Close() error { return gormdb.Close(s.db) }

func (s *GormTraceStore) Insert(ctx context.Context, t model.ProceduralTrace) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	tools := t.ToolsUsed
	if tools == nil {
		tools = map[string]any{}
	}
	row := traceRow{
		ID:         t.ID,
		UserID:     model.Nullable(t.UserID),
		AgentID:    model.Nullable(t.AgentID),
		TaskID:     model.Nullable(t.TaskID),
		Step:       t.Step,
		InputText:  t.InputText,
		OutputText: t.OutputText,
		ToolsUsed:  tools,
		DurationMS: t.DurationMS,
		CreatedAt:  t.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%s trace insert: %w", s.dialect, err)
	}
	return nil
}

func (s *GormTraceStore) ListByTask(ctx context.Context, taskID, userID string, limit int) ([]model.ProceduralTrace, error) {
	q := s.db.WithContext(ctx).Where("task_id = ?", taskID)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []traceRow
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(registrytrace.EffectiveLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s trace list: %w", s.dialect, err)
	}
	traces := make([]model.ProceduralTrace, len(rows))
	for i, r := range rows {
		tools := r.ToolsUsed
		if tools == nil {
			tools = map[string]any{}
		}
		traces[i] = model.ProceduralTrace{
			ID:         r.ID,
			UserID:     model.Deref(r.UserID),
			AgentID:    model.Deref(r.AgentID),
			TaskID:     model.Deref(r.TaskID),
			Step:       r.Step,
			InputText:  r.InputText,
			OutputText: r.OutputText,
			ToolsUsed:  tools,
			DurationMS: r.DurationMS,
			CreatedAt:  r.CreatedAt,
		}
	}
	return traces, nil
}

var _ registrytrace.TraceStore = (*GormTraceStore)(nil)
