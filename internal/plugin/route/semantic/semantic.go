// Package semantic exposes remember and retrieve over HTTP.
package semantic

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/model"
	registryroute "github.com/misteriosai/agent-memory/internal/registry/route"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/service"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  100,
		Type:   registryroute.RouteTypeMain,
		Loader: MountRoutes,
	})
}

// RememberRequest is the body of POST /v1/memory/semantic.
type RememberRequest struct {
	Texts          []string         `json:"texts"`
	Metadatas      []map[string]any `json:"metadatas,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	AgentID        string           `json:"agent_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

// SearchRequest is the body of POST /v1/memory/semantic/search.
type SearchRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Meta           map[string]any `json:"meta"`
	Score          float64        `json:"score"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MountRoutes mounts the semantic memory endpoints.
func MountRoutes(r *gin.Engine, svc *service.Memory) error {
	g := r.Group("/v1/memory/semantic")
	g.POST("", func(c *gin.Context) { remember(c, svc) })
	g.POST("/search", func(c *gin.Context) { search(c, svc) })
	return nil
}

func remember(c *gin.Context, svc *service.Memory) {
	var req RememberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := model.Scope{UserID: req.UserID, AgentID: req.AgentID, ConversationID: req.ConversationID}
	out := svc.Semantic.Remember(c.Request.Context(), req.Texts, scope, req.Metadatas)
	body := gin.H{"stored": out.Value}
	if out.Err != nil {
		body["warning"] = out.Err.Error()
	}
	c.JSON(http.StatusAccepted, body)
}

func search(c *gin.Context, svc *service.Memory) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := model.Scope{UserID: req.UserID, AgentID: req.AgentID, ConversationID: req.ConversationID}
	out := svc.Semantic.Retrieve(c.Request.Context(), req.Query, scope, req.TopK)
	body := gin.H{"results": toHits(out.Value)}
	if out.Err != nil {
		body["warning"] = out.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func toHits(results []registryvector.SearchResult) []SearchHit {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		meta := r.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		hits = append(hits, SearchHit{
			ID:             r.ID.String(),
			Text:           r.Text,
			Meta:           meta,
			Score:          r.Score,
			UserID:         r.UserID,
			AgentID:        r.AgentID,
			ConversationID: r.ConversationID,
			CreatedAt:      r.CreatedAt,
		})
	}
	return hits
}
