// Package mongo keeps procedural traces in a MongoDB collection.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/model"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	dbName         = "agent_memory"
	collectionName = "procedural_traces"
)

func init() {
	registrytrace.Register(registrytrace.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrytrace.TraceStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("mongo trace store: missing config in context")
			}
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return New(client, client.Database(dbName)), nil
		},
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-traces" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "mongo" {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)
	return EnsureIndexes(ctx, client.Database(dbName))
}

// EnsureIndexes creates the task and scope indexes on the traces collection.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := db.Collection(collectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo migration: create indexes on %s: %w", collectionName, err)
	}
	return nil
}

// New returns a store on db. Close disconnects client when it is non-nil.
func New(client *mongo.Client, db *mongo.Database) *MongoTraceStore {
	return &MongoTraceStore{client: client, traces: db.Collection(collectionName)}
}

// MongoTraceStore implements TraceStore on MongoDB.
type MongoTraceStore struct {
	client *mongo.Client
	traces *mongo.Collection
}

// traceDoc stores tools_used as JSON text so arbitrary tool payloads read back
// with the same shape they were written with.
type traceDoc struct {
	ID         string    `bson:"_id"`
	UserID     *string   `bson:"user_id"`
	AgentID    *string   `bson:"agent_id"`
	TaskID     *string   `bson:"task_id"`
	Step       int       `bson:"step"`
	InputText  string    `bson:"input_text"`
	OutputText string    `bson:"output_text"`
	ToolsUsed  string    `bson:"tools_used"`
	DurationMS int64     `bson:"duration_ms"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (s *MongoTraceStore) Name() string { return "mongo" }

func (s *MongoTraceStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

func (s *MongoTraceStore) Insert(ctx context.Context, t model.ProceduralTrace) error {
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
	raw, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("mongo trace insert: tools_used: %w", err)
	}
	doc := traceDoc{
		ID:         t.ID.String(),
		UserID:     model.Nullable(t.UserID),
		AgentID:    model.Nullable(t.AgentID),
		TaskID:     model.Nullable(t.TaskID),
		Step:       t.Step,
		InputText:  t.InputText,
		OutputText: t.OutputText,
		ToolsUsed:  string(raw),
		DurationMS: t.DurationMS,
		CreatedAt:  t.CreatedAt.UTC(),
	}
	if _, err := s.traces.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo trace insert: %w", err)
	}
	return nil
}

func (s *MongoTraceStore) ListByTask(ctx context.Context, taskID, userID string, limit int) ([]model.ProceduralTrace, error) {
	filter := bson.D{{Key: "task_id", Value: taskID}}
	if userID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: userID})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(registrytrace.EffectiveLimit(limit)))
	cursor, err := s.traces.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo trace list: %w", err)
	}
	var docs []traceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo trace list: %w", err)
	}

	traces := make([]model.ProceduralTrace, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			log.Warn("mongo: skipping trace with invalid id", "id", d.ID, "err", err)
			continue
		}
		tools := map[string]any{}
		if d.ToolsUsed != "" {
			if err := json.Unmarshal([]byte(d.ToolsUsed), &tools); err != nil {
				log.Warn("mongo: invalid tools_used", "id", d.ID, "err", err)
			}
		}
		traces = append(traces, model.ProceduralTrace{
			ID:         id,
			UserID:     model.Deref(d.UserID),
			AgentID:    model.Deref(d.AgentID),
			TaskID:     model.Deref(d.TaskID),
			Step:       d.Step,
			InputText:  d.InputText,
			OutputText: d.OutputText,
			ToolsUsed:  tools,
			DurationMS: d.DurationMS,
			CreatedAt:  d.CreatedAt,
		})
	}
	return traces, nil
}

var _ registrytrace.TraceStore = (*MongoTraceStore)(nil)
