package serve

import (
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/config"
	registryroute "github.com/misteriosai/agent-memory/internal/registry/route"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// startManagementServer serves the management routes on their own port. The
// listener shares the main listener's certificate.
func startManagementServer(cfg *config.Config, svc *service.Memory) (*Listener, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	}
	if err := registryroute.Mount(router, svc, registryroute.ManagementRouteLoaders()); err != nil {
		return nil, err
	}

	lc := cfg.ManagementListener
	lc.TLSCertFile = cfg.Listener.TLSCertFile
	lc.TLSKeyFile = cfg.Listener.TLSKeyFile
	if !lc.EnablePlainText && !lc.EnableTLS {
		lc.EnablePlainText = true
	}
	lis, err := Listen("management", lc, router)
	if err != nil {
		return nil, err
	}
	log.Info("Management server listening", "addr", lis.Addr)
	return lis, nil
}
