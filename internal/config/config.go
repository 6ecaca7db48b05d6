package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// MinChunkSize is the floor applied to ChunkSize.
const MinChunkSize = 100

// Config holds all configuration for the agent memory service.
type Config struct {
	// Semantic memory
	MemoryEnabled bool
	// TopK is the default number of results returned by a retrieve.
	TopK int
	// MaxChars truncates each remembered text before chunking. Zero disables truncation.
	MaxChars int
	// ChunkSize is the chunk length in characters; see EffectiveChunkSize.
	ChunkSize int
	// VectorDimension is the embedding length every stored entry must have.
	VectorDimension int

	// Embedding type
	EmbedType string // "tei", "openai", "local", or "none"

	// Text-embeddings-inference style endpoint.
	EmbeddingURL     string
	EmbeddingTimeout time.Duration

	// OpenAI
	OpenAIAPIKey    string
	OpenAIModelName string
	OpenAIBaseURL   string

	// Embedding cache backend type
	CacheType string // "local", "redis", or "none"
	CacheTTL  time.Duration
	// LocalCacheMaxCost bounds the in-process cache, in bytes of vector data.
	LocalCacheMaxCost int64

	// Redis
	RedisURL string

	// Datastore backend type for procedural traces.
	DatastoreType string // "postgres", "sqlite", or "mongo"

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Database
	DBURL string

	// SQLitePath is the database file used by the sqlite datastore and the sqlitevec vector store.
	SQLitePath string

	// Vector store type
	VectorType string // "pgvector", "sqlitevec", "qdrant", or "chromem"

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// ChromemPath persists the chromem collection to disk. Empty keeps it in memory.
	ChromemPath string

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=agent-memory".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MemoryEnabled:           true,
		TopK:                    5,
		MaxChars:                4000,
		ChunkSize:               800,
		VectorDimension:         1024,
		EmbedType:               "local",
		EmbeddingTimeout:        10 * time.Second,
		OpenAIModelName:         "text-embedding-3-small",
		OpenAIBaseURL:           "https://api.openai.com/v1",
		CacheType:               "none",
		CacheTTL:                24 * time.Hour,
		LocalCacheMaxCost:       64 * 1024 * 1024,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		VectorType:              "pgvector",
		VectorMigrateAtStart:    true,
		QdrantHost:              "localhost",
		QdrantPort:              6334,
		QdrantStartupTimeout:    30 * time.Second,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:    4 * 1024 * 1024,
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
	}
}

// EffectiveChunkSize returns ChunkSize clamped to MinChunkSize.
func (c *Config) EffectiveChunkSize() int {
	if c == nil || c.ChunkSize < MinChunkSize {
		return MinChunkSize
	}
	return c.ChunkSize
}

// ResolvedSQLitePath returns the configured sqlite file or a file in the working directory.
func (c *Config) ResolvedSQLitePath() string {
	if c != nil {
		if p := strings.TrimSpace(c.SQLitePath); p != "" {
			return p
		}
	}
	return filepath.Join(".", "agent-memory.db")
}
