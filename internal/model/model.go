package model

import (
	"time"

	"github.com/google/uuid"
)

// Scope identifies who a memory belongs to. Every field is optional; an empty
// value means "unset" and is stored as NULL by the backends.
type Scope struct {
	UserID         string `json:"user_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Metadata keys added to every stored chunk.
const (
	MetaOrigIndex = "orig_index"
	MetaChunk     = "chunk"
)

// SemanticMemoryEntry is one embedded chunk of remembered text.
// Entries are immutable once stored.
type SemanticMemoryEntry struct {
	ID             uuid.UUID      `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Text           string         `json:"text"`
	Meta           map[string]any `json:"meta"`
	Embedding      []float32      `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Scope returns the entry's scope keys.
func (e SemanticMemoryEntry) Scope() Scope {
	return Scope{UserID: e.UserID, AgentID: e.AgentID, ConversationID: e.ConversationID}
}

// ProceduralTrace records one executed step of an agent task.
type ProceduralTrace struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Step       int            `json:"step"`
	InputText  string         `json:"input_text"`
	OutputText string         `json:"output_text"`
	ToolsUsed  map[string]any `json:"tools_used"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Nullable maps the empty string to nil, for columns where unset scope keys are NULL.
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref is the inverse of Nullable.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
