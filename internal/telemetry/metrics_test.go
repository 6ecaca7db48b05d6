package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("POD_NAME", "memory-0")

	labels, err := ParseMetricsLabels("service=agent-memory,pod=${POD_NAME}")
	require.NoError(t, err)
	require.Equal(t, prometheus.Labels{"service": "agent-memory", "pod": "memory-0"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)
}

func TestParseMetricsLabels_RejectsInvalidPairs(t *testing.T) {
	_, err := ParseMetricsLabels("service")
	require.ErrorContains(t, err, "expected key=value")

	_, err = ParseMetricsLabels("1bad=x")
	require.ErrorContains(t, err, "invalid label key")
}

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		ObserveVectorStore("chromem", "search", time.Now())
		ObserveTraceStore("sqlite", "insert", time.Now())
		ObserveEmbedding("tei", time.Now(), nil)
		CountEmbeddingCache(1, 2)
		CountMemoryOperation("remember", "ok")
		CountChunksStored(3)
	})
}
