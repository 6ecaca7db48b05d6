// Package procedural exposes step logging and task trace listing over HTTP.
package procedural

import (
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/memory"
	registryroute "github.com/misteriosai/agent-memory/internal/registry/route"
	"github.com/misteriosai/agent-memory/internal/service"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  110,
		Type:   registryroute.RouteTypeMain,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts the procedural memory endpoints.
func MountRoutes(r *gin.Engine, svc *service.Memory) error {
	g := r.Group("/v1/memory/procedural")
	g.POST("/steps", func(c *gin.Context) { logStep(c, svc) })
	g.GET("/tasks/:taskId", func(c *gin.Context) { listByTask(c, svc) })
	return nil
}

func logStep(c *gin.Context, svc *service.Memory) {
	var step memory.Step
	if err := c.ShouldBindJSON(&step); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := svc.Procedural.LogStep(c.Request.Context(), step)
	switch {
	case out.Skipped:
		c.JSON(http.StatusAccepted, gin.H{"id": nil, "warning": "procedural memory is disabled"})
	case out.Err != nil:
		c.JSON(http.StatusAccepted, gin.H{"id": nil, "warning": out.Err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"id": out.Value.String()})
	}
}

func listByTask(c *gin.Context, svc *service.Memory) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	taskID := c.Param("taskId")
	traces, err := svc.Procedural.ListByTask(c.Request.Context(), taskID, c.Query("user_id"), limit)
	if err != nil {
		log.Error("Failed to list procedural traces", "task_id", taskID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list traces"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}
