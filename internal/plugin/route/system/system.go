package system

import (
	"net/http"

	"github.com/gin-gonic/gin"
	registryroute "github.com/misteriosai/agent-memory/internal/registry/route"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts the liveness, readiness and metrics endpoints.
func MountRoutes(r *gin.Engine, svc *service.Memory) error {
	// Liveness: process is up
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: service has finished initializing
	r.GET("/ready", func(c *gin.Context) {
		if svc != nil && svc.Ready() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		}
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}
