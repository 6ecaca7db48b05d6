package vector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/model"
)

// Filters narrows a search. Each non-empty field is an equality predicate; all
// set predicates must hold.
type Filters struct {
	UserID         string
	AgentID        string
	ConversationID string
}

// FiltersFromScope uses every set scope key as a filter.
func FiltersFromScope(s model.Scope) Filters {
	return Filters{UserID: s.UserID, AgentID: s.AgentID, ConversationID: s.ConversationID}
}

// Matches reports whether an entry satisfies the filters.
func (f Filters) Matches(e model.SemanticMemoryEntry) bool {
	return (f.UserID == "" || f.UserID == e.UserID) &&
		(f.AgentID == "" || f.AgentID == e.AgentID) &&
		(f.ConversationID == "" || f.ConversationID == e.ConversationID)
}

// AddRequest holds parallel lists of chunk texts, their embeddings and
// optional per-item metadata, all stored under one scope.
type AddRequest struct {
	Texts     []string
	Vectors   [][]float32
	Metadatas []map[string]any
	Scope     model.Scope
}

// SearchRequest describes a filtered nearest-neighbour query.
type SearchRequest struct {
	Vector  []float32
	TopK    int
	Filters Filters
}

// SearchResult is a stored entry and its cosine similarity (1 - cosine distance) to the query.
type SearchResult struct {
	model.SemanticMemoryEntry
	Score float64 `json:"score"`
}

// VectorStore persists embedded chunks and answers cosine top-K queries.
type VectorStore interface {
	// Add stores one entry per text in a single atomic batch and returns the new ids.
	Add(ctx context.Context, req AddRequest) ([]uuid.UUID, error)
	// Search returns up to TopK entries ordered by descending similarity.
	// Zero matches is an empty result, not an error.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
	Close() error
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}

// Empty reports whether the request has nothing to store: either list being
// empty makes Add a no-op, before any length check.
func (r AddRequest) Empty() bool {
	return len(r.Texts) == 0 || len(r.Vectors) == 0
}

// Validate checks the parallel lists and, when dim > 0, every vector's length.
func (r AddRequest) Validate(dim int) error {
	if len(r.Texts) != len(r.Vectors) {
		return &ValidationError{
			Field:   "vectors",
			Message: fmt.Sprintf("got %d vectors for %d texts", len(r.Vectors), len(r.Texts)),
		}
	}
	if dim <= 0 {
		return nil
	}
	for i, v := range r.Vectors {
		if len(v) != dim {
			return &ValidationError{
				Field:   fmt.Sprintf("vectors[%d]", i),
				Message: fmt.Sprintf("dimension %d does not match store dimension %d", len(v), dim),
			}
		}
	}
	return nil
}

// Entries builds the entries to persist, each with a fresh id and the given timestamp.
func (r AddRequest) Entries(now time.Time) []model.SemanticMemoryEntry {
	entries := make([]model.SemanticMemoryEntry, len(r.Texts))
	for i, text := range r.Texts {
		var meta map[string]any
		if i < len(r.Metadatas) {
			meta = r.Metadatas[i]
		}
		if meta == nil {
			meta = map[string]any{}
		}
		entries[i] = model.SemanticMemoryEntry{
			ID:             uuid.New(),
			UserID:         r.Scope.UserID,
			AgentID:        r.Scope.AgentID,
			ConversationID: r.Scope.ConversationID,
			Text:           text,
			Meta:           meta,
			Embedding:      r.Vectors[i],
			CreatedAt:      now,
		}
	}
	return entries
}

// ValidateQuery checks a query vector against the store dimension.
func ValidateQuery(v []float32, dim int) error {
	if len(v) == 0 {
		return &ValidationError{Field: "vector", Message: "query vector is empty"}
	}
	if dim > 0 && len(v) != dim {
		return &ValidationError{
			Field:   "vector",
			Message: fmt.Sprintf("dimension %d does not match store dimension %d", len(v), dim),
		}
	}
	return nil
}

// SortResults orders results by descending score, breaking ties by insertion
// time and then id so equal distances come back in a stable order.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
