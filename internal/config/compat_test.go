package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyLegacyEnv(t *testing.T) {
	t.Setenv("EMBEDDINGS_URL", "http://tei:8080")
	t.Setenv("AGENT_MEMORY_EMBED_KIND", "")
	t.Setenv("MEMORY_TIMEOUT_SECONDS", "2.5")
	t.Setenv("MEMORY_TOP_K", "7")
	t.Setenv("MEMORY_ENABLE", "false")
	t.Setenv("MEMORY_MAX_CHARS", "2000")
	t.Setenv("MEMORY_CHUNK_SIZE", "50")
	t.Setenv("CORS_ORIGINS", "https://chat.example")

	cfg := DefaultConfig()
	err := cfg.ApplyLegacyEnv()
	require.NoError(t, err)

	require.Equal(t, "http://tei:8080", cfg.EmbeddingURL)
	require.Equal(t, "tei", cfg.EmbedType)
	require.Equal(t, 2500*time.Millisecond, cfg.EmbeddingTimeout)
	require.Equal(t, 7, cfg.TopK)
	require.False(t, cfg.MemoryEnabled)
	require.Equal(t, 2000, cfg.MaxChars)
	require.Equal(t, 50, cfg.ChunkSize)
	require.Equal(t, MinChunkSize, cfg.EffectiveChunkSize())
	require.True(t, cfg.CORSEnabled)
	require.Equal(t, "https://chat.example", cfg.CORSOrigins)
}

func TestApplyLegacyEnv_ExplicitEmbedKindWins(t *testing.T) {
	t.Setenv("EMBEDDINGS_URL", "http://tei:8080")
	t.Setenv("AGENT_MEMORY_EMBED_KIND", "openai")

	cfg := DefaultConfig()
	cfg.EmbedType = "openai"
	require.NoError(t, cfg.ApplyLegacyEnv())
	require.Equal(t, "openai", cfg.EmbedType)
}

func TestApplyLegacyEnv_TimeoutAcceptsDurations(t *testing.T) {
	t.Setenv("MEMORY_TIMEOUT_SECONDS", "PT30S")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyLegacyEnv())
	require.Equal(t, 30*time.Second, cfg.EmbeddingTimeout)
}

func TestApplyLegacyEnv_RejectsInvalidValues(t *testing.T) {
	t.Setenv("MEMORY_TOP_K", "many")

	cfg := DefaultConfig()
	err := cfg.ApplyLegacyEnv()
	require.ErrorContains(t, err, "MEMORY_TOP_K")
}

func TestQdrantAddress_Defaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "localhost:6334", cfg.QdrantAddress())
}

func TestQdrantAddress_UsesPortFromHostWhenProvided(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "localhost:7443"
	cfg.QdrantPort = 6334

	require.Equal(t, "localhost:7443", cfg.QdrantAddress())
}

func TestQdrantAddress_UsesHostPortFromURLWhenProvided(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "http://localhost:9443"
	cfg.QdrantPort = 6334

	require.Equal(t, "localhost:9443", cfg.QdrantAddress())
}
