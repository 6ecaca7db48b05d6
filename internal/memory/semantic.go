package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/model"
	registryembed "github.com/misteriosai/agent-memory/internal/registry/embed"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// SemanticMemory chunks, embeds and stores text, and recalls it by similarity.
type SemanticMemory struct {
	cfg      *config.Config
	embedder registryembed.Embedder
	store    registryvector.VectorStore
	closed   atomic.Bool
}

// NewSemanticMemory wires a manager. A nil embedder or store disables it.
func NewSemanticMemory(cfg *config.Config, embedder registryembed.Embedder, store registryvector.VectorStore) *SemanticMemory {
	if cfg == nil {
		d := config.DefaultConfig()
		cfg = &d
	}
	return &SemanticMemory{cfg: cfg, embedder: embedder, store: store}
}

// Enabled reports whether Remember and Retrieve will contact any backend.
func (m *SemanticMemory) Enabled() bool {
	return m != nil && !m.closed.Load() && m.cfg.MemoryEnabled && m.embedder != nil && m.store != nil
}

// Close disables the manager. Calls already past the Enabled check finish
// against their backends; later calls are skipped. The backends are not closed.
func (m *SemanticMemory) Close() {
	if m != nil {
		m.closed.Store(true)
	}
}

// Remember truncates and chunks texts, embeds every chunk in one call and
// stores them in one batch under scope. metadatas[i] is copied onto each chunk
// of texts[i] along with its orig_index and chunk number. The Outcome value is
// the number of chunks stored.
func (m *SemanticMemory) Remember(ctx context.Context, texts []string, scope model.Scope, metadatas []map[string]any) (out Outcome[int]) {
	if !m.Enabled() || len(texts) == 0 {
		telemetry.CountMemoryOperation("remember", telemetry.ResultSkipped)
		return Outcome[int]{Skipped: true}
	}
	defer recoverInto(&out, "remember", 0)

	chunkSize := m.cfg.EffectiveChunkSize()
	var chunks []string
	var chunkMeta []map[string]any
	for i, text := range texts {
		var base map[string]any
		if i < len(metadatas) {
			base = metadatas[i]
		}
		for j, chunk := range Chunk(Truncate(text, m.cfg.MaxChars), chunkSize) {
			meta := make(map[string]any, len(base)+2)
			maps.Copy(meta, base)
			meta[model.MetaOrigIndex] = i
			meta[model.MetaChunk] = j
			chunks = append(chunks, chunk)
			chunkMeta = append(chunkMeta, meta)
		}
	}
	if len(chunks) == 0 {
		telemetry.CountMemoryOperation("remember", telemetry.ResultSkipped)
		return Outcome[int]{Skipped: true}
	}

	vectors, err := m.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return failed[int]("remember", "Semantic memory write failed", err)
	}
	ids, err := m.store.Add(ctx, registryvector.AddRequest{
		Texts:     chunks,
		Vectors:   vectors,
		Metadatas: chunkMeta,
		Scope:     scope,
	})
	if err != nil {
		return failed[int]("remember", "Semantic memory write failed", err)
	}
	telemetry.CountMemoryOperation("remember", telemetry.ResultOK)
	telemetry.CountChunksStored(len(ids))
	log.Debug("Stored semantic memory", "chunks", len(ids), "texts", len(texts))
	return Outcome[int]{Value: len(ids)}
}

// Retrieve returns up to topK stored chunks most similar to query, restricted
// to the set scope keys. A non-positive topK uses the configured default.
// Disabled mode and failures yield an empty Value.
func (m *SemanticMemory) Retrieve(ctx context.Context, query string, scope model.Scope, topK int) (out Outcome[[]registryvector.SearchResult]) {
	empty := []registryvector.SearchResult{}
	if !m.Enabled() {
		telemetry.CountMemoryOperation("retrieve", telemetry.ResultSkipped)
		return Outcome[[]registryvector.SearchResult]{Value: empty, Skipped: true}
	}
	defer recoverInto(&out, "retrieve", empty)
	if topK <= 0 {
		topK = m.cfg.TopK
	}

	vectors, err := m.embedder.EmbedTexts(ctx, []string{query})
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}
	if err != nil {
		o := failed[[]registryvector.SearchResult]("retrieve", "Semantic memory retrieval failed", err)
		o.Value = empty
		return o
	}
	results, err := m.store.Search(ctx, registryvector.SearchRequest{
		Vector:  vectors[0],
		TopK:    topK,
		Filters: registryvector.FiltersFromScope(scope),
	})
	if err != nil {
		o := failed[[]registryvector.SearchResult]("retrieve", "Semantic memory retrieval failed", err)
		o.Value = empty
		return o
	}
	if results == nil {
		results = empty
	}
	telemetry.CountMemoryOperation("retrieve", telemetry.ResultOK)
	return Outcome[[]registryvector.SearchResult]{Value: results}
}

// failed logs err and wraps it in an Outcome. Configuration errors are logged
// at error level, everything else at warn.
func failed[T any](op, msg string, err error) Outcome[T] {
	var cfgErr *registryembed.ConfigurationError
	if errors.As(err, &cfgErr) {
		log.Error(msg, "op", op, "setting", cfgErr.Setting, "err", err)
	} else {
		log.Warn(msg, "op", op, "err", err)
	}
	telemetry.CountMemoryOperation(op, telemetry.ResultError)
	return Outcome[T]{Err: err}
}

// recoverInto turns a panic in a backend into a failed Outcome holding fallback.
func recoverInto[T any](out *Outcome[T], op string, fallback T) {
	r := recover()
	if r == nil {
		return
	}
	*out = failed[T](op, "Memory operation panicked", fmt.Errorf("panic: %v", r))
	out.Value = fallback
}
