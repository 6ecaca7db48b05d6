// Package chromem is an in-process VectorStore on chromem-go, optionally
// persisted to a directory. It needs no external services.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/philippgille/chromem-go"
)

const collectionName = "semantic_items"

const (
	keyUserID         = "user_id"
	keyAgentID        = "agent_id"
	keyConversationID = "conversation_id"
	keyMeta           = "meta"
	keyCreatedAt      = "created_at"
)

var errNoEmbeddingFunc = errors.New("chromem: embeddings must be supplied by the caller")

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "chromem",
		Loader: load,
	})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("chromem: missing config in context")
	}
	return New(cfg.ChromemPath, cfg.VectorDimension)
}

// New opens a store. An empty persistDir keeps everything in memory.
func New(persistDir string, dimension int) (*ChromemStore, error) {
	var db *chromem.DB
	if dir := strings.TrimSpace(persistDir); dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: open %s: %w", dir, err)
		}
	} else {
		db = chromem.NewDB()
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("chromem: get or create collection: %w", err)
	}
	return &ChromemStore{db: db, collection: col, dimension: dimension}, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// ChromemStore implements VectorStore on a single chromem collection.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

func (s *ChromemStore) Name() string { return "chromem" }
func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) Add(ctx context.Context, req registryvector.AddRequest) ([]uuid.UUID, error) {
	if req.Empty() {
		return nil, nil
	}
	if err := req.Validate(s.dimension); err != nil {
		return nil, err
	}
	entries := req.Entries(time.Now().UTC())
	docs := make([]chromem.Document, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return nil, &registryvector.ValidationError{Field: fmt.Sprintf("metadatas[%d]", i), Message: err.Error()}
		}
		md := map[string]string{
			keyMeta:      string(meta),
			keyCreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		}
		setIfPresent(md, keyUserID, e.UserID)
		setIfPresent(md, keyAgentID, e.AgentID)
		setIfPresent(md, keyConversationID, e.ConversationID)
		docs[i] = chromem.Document{
			ID:        e.ID.String(),
			Content:   e.Text,
			Embedding: e.Embedding,
			Metadata:  md,
		}
		ids[i] = e.ID
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chromem add: %w", err)
	}
	// AddDocuments drops documents silently once ctx is done, so a cancelled
	// batch is removed again rather than left half written.
	err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.rollback(docs)
		return nil, fmt.Errorf("chromem add: %w", err)
	}
	return ids, nil
}

func (s *ChromemStore) rollback(docs []chromem.Document) {
	docIDs := make([]string, len(docs))
	for i, d := range docs {
		docIDs[i] = d.ID
	}
	if err := s.collection.Delete(context.Background(), nil, nil, docIDs...); err != nil {
		log.Warn("chromem: rollback of partial batch failed", "documents", len(docIDs), "err", err)
	}
}

func (s *ChromemStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.TopK <= 0 {
		return []registryvector.SearchResult{}, nil
	}
	if err := registryvector.ValidateQuery(req.Vector, s.dimension); err != nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size.
	count := s.collection.Count()
	if count == 0 {
		return []registryvector.SearchResult{}, nil
	}

	where := map[string]string{}
	setIfPresent(where, keyUserID, req.Filters.UserID)
	setIfPresent(where, keyAgentID, req.Filters.AgentID)
	setIfPresent(where, keyConversationID, req.Filters.ConversationID)
	if len(where) == 0 {
		where = nil
	}

	// Rank every match so ties at the top-K boundary resolve the same way each time.
	docs, err := s.collection.QueryEmbedding(ctx, req.Vector, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem search: %w", err)
	}

	results := make([]registryvector.SearchResult, 0, len(docs))
	for _, d := range docs {
		r, err := resultFromDocument(d)
		if err != nil {
			log.Warn("chromem: skipping unreadable document", "id", d.ID, "err", err)
			continue
		}
		results = append(results, r)
	}
	registryvector.SortResults(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

func resultFromDocument(d chromem.Result) (registryvector.SearchResult, error) {
	var r registryvector.SearchResult
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return r, err
	}
	r.ID = id
	r.Text = d.Content
	r.UserID = d.Metadata[keyUserID]
	r.AgentID = d.Metadata[keyAgentID]
	r.ConversationID = d.Metadata[keyConversationID]
	r.Meta = map[string]any{}
	if raw := d.Metadata[keyMeta]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Meta); err != nil {
			return r, err
		}
	}
	if ts := d.Metadata[keyCreatedAt]; ts != "" {
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return r, err
		}
	}
	r.Embedding = d.Embedding
	r.Score = float64(d.Similarity)
	return r, nil
}

func setIfPresent(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

var _ registryvector.VectorStore = (*ChromemStore)(nil)
