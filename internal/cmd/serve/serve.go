package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/config"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/telemetry"
	"github.com/urfave/cli/v3"

	_ "github.com/misteriosai/agent-memory/internal/plugin/all"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs = 5
	var logLevel = "info"
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the agent memory HTTP server",
		Flags: append(Flags(&cfg), serverFlags(&cfg, &readHeaderTimeoutSecs, &logLevel)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			telemetry.SetLogLevel(logLevel)
			if err := cfg.ApplyLegacyEnv(); err != nil {
				return err
			}
			if cmd.IsSet("cors-origins") {
				cfg.CORSEnabled = true
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

// Flags returns the memory subsystem flags shared by every command that
// builds the memory service.
func Flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Memory ────────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "memory-enabled",
			Category:    "Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_ENABLED"),
			Destination: &cfg.MemoryEnabled,
			Value:       cfg.MemoryEnabled,
			Usage:       "Enable semantic memory writes and retrieval",
		},
		&cli.IntFlag{
			Name:        "top-k",
			Category:    "Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TOP_K"),
			Destination: &cfg.TopK,
			Value:       cfg.TopK,
			Usage:       "Default number of results returned by a retrieve",
		},
		&cli.IntFlag{
			Name:        "max-chars",
			Category:    "Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MAX_CHARS"),
			Destination: &cfg.MaxChars,
			Value:       cfg.MaxChars,
			Usage:       "Truncate each remembered text to this many characters (0 = no limit)",
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Category:    "Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_CHUNK_SIZE"),
			Destination: &cfg.ChunkSize,
			Value:       cfg.ChunkSize,
			Usage:       "Chunk length in characters (minimum 100)",
		},
		&cli.IntFlag{
			Name:        "vector-dimension",
			Category:    "Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_DIMENSION"),
			Destination: &cfg.VectorDimension,
			Value:       cfg.VectorDimension,
			Usage:       "Embedding dimension every stored vector must have",
		},
		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embed-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBED_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "embedding-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_URL"),
			Destination: &cfg.EmbeddingURL,
			Usage:       "Base URL of the text-embeddings-inference endpoint",
		},
		&cli.DurationFlag{
			Name:        "embedding-timeout",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_TIMEOUT"),
			Destination: &cfg.EmbeddingTimeout,
			Value:       cfg.EmbeddingTimeout,
			Usage:       "Timeout for one embedding request",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_OPENAI_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "OpenAI embedding model",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI-compatible API base URL",
		},
		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("AGENT_MEMORY_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Embedding cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("AGENT_MEMORY_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "Lifetime of cached embeddings",
		},
		&cli.Int64Flag{
			Name:        "cache-local-max-cost",
			Category:    "Cache:",
			Sources:     cli.EnvVars("AGENT_MEMORY_CACHE_LOCAL_MAX_COST"),
			Destination: &cfg.LocalCacheMaxCost,
			Value:       cfg.LocalCacheMaxCost,
			Usage:       "Bytes of vector data kept by the local cache",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("AGENT_MEMORY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		// ── Datastore ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Procedural trace store (" + strings.Join(registrytrace.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (postgres or mongo)",
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_SQLITE_PATH"),
			Destination: &cfg.SQLitePath,
			Usage:       "SQLite database file for the sqlite and sqlitevec backends",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Create the trace schema on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (" + strings.Join(registryvector.Names(), "|") + "|none)",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Create the vector schema or collection on startup",
		},
		&cli.StringFlag{
			Name:        "vector-chromem-path",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_CHROMEM_PATH"),
			Destination: &cfg.ChromemPath,
			Usage:       "Directory persisting the chromem collection (empty = in memory)",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host or host:port",
		},
		&cli.IntFlag{
			Name:        "vector-qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Usage:       "Qdrant collection (default semantic_items_<dimension>)",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "vector-qdrant-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Use TLS for the Qdrant connection",
		},
		&cli.DurationFlag{
			Name:        "vector-qdrant-startup-timeout",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_QDRANT_STARTUP_TIMEOUT"),
			Destination: &cfg.QdrantStartupTimeout,
			Value:       cfg.QdrantStartupTimeout,
			Usage:       "How long to wait for Qdrant at startup",
		},
	}
}

func serverFlags(cfg *config.Config, readHeaderTimeoutSecs *int, logLevel *string) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_LOG_LEVEL"),
			Destination: logLevel,
			Value:       *logLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "How long shutdown waits for in-flight requests",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins (* for any); enables CORS",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},
		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},
		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("AGENT_MEMORY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=agent-memory",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

// maxBodySizeMiddleware rejects declared oversize bodies up front and caps
// the rest while they are read.
func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
