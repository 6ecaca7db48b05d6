// Package service owns the memory subsystem's lifecycle: it builds the
// configured backends once at startup and hands them to every surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/memory"
	"github.com/misteriosai/agent-memory/internal/plugin/embed/cached"
	embedmetrics "github.com/misteriosai/agent-memory/internal/plugin/embed/metrics"
	tracemetrics "github.com/misteriosai/agent-memory/internal/plugin/trace/metrics"
	vectormetrics "github.com/misteriosai/agent-memory/internal/plugin/vector/metrics"
	registrycache "github.com/misteriosai/agent-memory/internal/registry/cache"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
)

// Memory is the process-wide memory service. Construct it with New, call Init
// once, MarkReady when the surface is serving, and Shutdown on exit.
type Memory struct {
	Config     *config.Config
	Semantic   *memory.SemanticMemory
	Procedural *memory.ProceduralMemory

	embedder registryembed.Embedder
	vectors  registryvector.VectorStore
	traces   registrytrace.TraceStore
	cache    registrycache.EmbeddingCache

	initialized atomic.Bool
	ready       atomic.Bool
}

// New returns an uninitialized service. Until Init succeeds both memories are disabled.
func New(cfg *config.Config) *Memory {
	return &Memory{
		Config:     cfg,
		Semantic:   memory.NewSemanticMemory(cfg, nil, nil),
		Procedural: memory.NewProceduralMemory(nil),
	}
}

// NewWithBackends wires already-built backends, skipping plugin selection and migrations.
func NewWithBackends(cfg *config.Config, embedder registryembed.Embedder, vectors registryvector.VectorStore, traces registrytrace.TraceStore) *Memory {
	m := New(cfg)
	m.embedder, m.vectors, m.traces = embedder, vectors, traces
	m.Semantic = memory.NewSemanticMemory(cfg, embedder, vectors)
	m.Procedural = memory.NewProceduralMemory(traces)
	m.initialized.Store(true)
	return m
}

// Init validates the configuration, runs migrations and loads the configured
// embedder, embedding cache, vector store and trace store.
func (m *Memory) Init(ctx context.Context) error {
	if m.initialized.Load() {
		return errors.New("memory service already initialized")
	}
	cfg := m.Config
	if err := Validate(cfg); err != nil {
		return err
	}
	ctx = config.WithContext(ctx, cfg)

	log.Info("Initializing memory service",
		"enabled", cfg.MemoryEnabled,
		"embedding", cfg.EmbedType,
		"vector", cfg.VectorType,
		"datastore", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"dimension", cfg.VectorDimension,
	)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	traceLoader, err := registrytrace.Select(cfg.DatastoreType)
	if err != nil {
		return err
	}
	traces, err := traceLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize trace store: %w", err)
	}
	m.traces = tracemetrics.Wrap(traces)
	m.Procedural = memory.NewProceduralMemory(m.traces)

	if cfg.MemoryEnabled && !isNone(cfg.EmbedType) && !isNone(cfg.VectorType) {
		if err := m.initSemantic(ctx); err != nil {
			m.closeBackends()
			return err
		}
	} else {
		log.Info("Semantic memory disabled")
	}

	m.initialized.Store(true)
	return nil
}

func (m *Memory) initSemantic(ctx context.Context) error {
	cfg := m.Config
	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if dim := embedder.Dimension(); dim > 0 && dim != cfg.VectorDimension {
		return &registryembed.ConfigurationError{
			Setting: "AGENT_MEMORY_VECTOR_DIMENSION",
			Message: fmt.Sprintf("embedder %s produces %d-d vectors but the store expects %d", embedder.ModelName(), dim, cfg.VectorDimension),
		}
	}

	// The cache is optional: a cache that fails to load is logged and skipped.
	if !isNone(cfg.CacheType) {
		if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
			log.Warn("Embedding cache not available", "cache", cfg.CacheType, "err", err)
		} else if c, err := cacheLoader(ctx); err != nil {
			log.Warn("Failed to initialize embedding cache", "cache", cfg.CacheType, "err", err)
		} else {
			m.cache = c
		}
	}
	m.embedder = cached.Wrap(embedmetrics.Wrap(embedder), m.cache, cfg.CacheTTL)

	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return err
	}
	vectors, err := vectorLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	m.vectors = vectormetrics.Wrap(vectors)
	m.Semantic = memory.NewSemanticMemory(cfg, m.embedder, m.vectors)
	return nil
}

// Validate rejects configurations that cannot work, before anything is opened.
func Validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("memory service: nil config")
	}
	if cfg.MemoryEnabled && strings.EqualFold(cfg.EmbedType, "tei") && strings.TrimSpace(cfg.EmbeddingURL) == "" {
		return &registryembed.ConfigurationError{Setting: "EMBEDDINGS_URL", Message: "embedding service URL is not configured"}
	}
	if cfg.MemoryEnabled && cfg.VectorDimension <= 0 {
		return &registryembed.ConfigurationError{Setting: "AGENT_MEMORY_VECTOR_DIMENSION", Message: "must be positive"}
	}
	return nil
}

// MarkReady signals that the service is initialized and its surface is serving.
func (m *Memory) MarkReady() {
	if m.initialized.Load() {
		m.ready.Store(true)
	}
}

// Ready reports whether MarkReady has been called and Shutdown has not.
func (m *Memory) Ready() bool {
	return m != nil && m.ready.Load()
}

// Shutdown releases every backend. The service is not ready afterwards.
func (m *Memory) Shutdown(ctx context.Context) error {
	m.ready.Store(false)
	// Requests still draining may hold Semantic and Procedural, so they are
	// switched off in place rather than replaced.
	m.Semantic.Close()
	m.Procedural.Close()
	err := m.closeBackends()
	log.Info("Memory service stopped")
	return err
}

func (m *Memory) closeBackends() error {
	var errs []error
	if m.vectors != nil {
		errs = append(errs, m.vectors.Close())
		m.vectors = nil
	}
	if m.traces != nil {
		errs = append(errs, m.traces.Close())
		m.traces = nil
	}
	if m.cache != nil {
		errs = append(errs, m.cache.Close())
		m.cache = nil
	}
	m.embedder = nil
	return errors.Join(errs...)
}

func isNone(kind string) bool {
	kind = strings.TrimSpace(kind)
	return kind == "" || strings.EqualFold(kind, "none")
}
