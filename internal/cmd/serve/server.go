package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/config"
	registryroute "github.com/misteriosai/agent-memory/internal/registry/route"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/misteriosai/agent-memory/internal/telemetry"

	// Route plugins register themselves with the route registry.
	_ "github.com/misteriosai/agent-memory/internal/plugin/route/procedural"
	_ "github.com/misteriosai/agent-memory/internal/plugin/route/semantic"
	_ "github.com/misteriosai/agent-memory/internal/plugin/route/system"
)

// Server holds the running listeners and the memory service behind them.
type Server struct {
	Config          *config.Config
	Memory          *service.Memory
	Router          *gin.Engine
	Running         *Listener
	closeManagement func(context.Context) error
}

// Shutdown stops accepting requests, drains in-flight ones and releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.closeManagement != nil {
		errs = append(errs, s.closeManagement(ctx))
	}
	if s.Running != nil {
		errs = append(errs, s.Running.Close(ctx))
	}
	errs = append(errs, s.Memory.Shutdown(ctx))
	return errors.Join(errs...)
}

// StartServer initializes the memory service and starts serving it.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting agent memory service",
		"httpPort", cfg.Listener.Port,
		"memory", cfg.MemoryEnabled,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
	)

	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	svc := service.New(cfg)
	if err := svc.Init(ctx); err != nil {
		return nil, err
	}
	srv, err := serveMemory(cfg, svc)
	if err != nil {
		_ = svc.Shutdown(context.Background())
		return nil, err
	}
	return srv, nil
}

func serveMemory(cfg *config.Config, svc *service.Memory) (*Server, error) {
	router, err := newRouter(cfg, svc)
	if err != nil {
		return nil, err
	}

	srv := &Server{Config: cfg, Memory: svc, Router: router}
	if cfg.ManagementListenerEnabled {
		mgmt, err := startManagementServer(cfg, svc)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		srv.closeManagement = mgmt.Close
	}

	running, err := Listen("main", cfg.Listener, router)
	if err != nil {
		if srv.closeManagement != nil {
			_ = srv.closeManagement(context.Background())
		}
		return nil, err
	}
	srv.Running = running

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)
	svc.MarkReady()
	return srv, nil
}

// newRouter builds the main gin engine. Management routes are mounted on it
// unless a dedicated management port is configured.
func newRouter(cfg *config.Config, svc *service.Memory) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	} else {
		router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(telemetry.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	if err := registryroute.Mount(router, svc, registryroute.MainRouteLoaders()); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	if !cfg.ManagementListenerEnabled {
		if err := registryroute.Mount(router, svc, registryroute.ManagementRouteLoaders()); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}
	return router, nil
}
