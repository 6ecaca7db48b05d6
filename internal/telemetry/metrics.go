package telemetry

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// VectorStoreLatency records vector store operation latency by backend and operation.
	VectorStoreLatency *prometheus.HistogramVec

	// TraceStoreLatency records trace store operation latency by backend and operation.
	TraceStoreLatency *prometheus.HistogramVec

	// EmbeddingLatency records embedding backend calls by model and outcome.
	EmbeddingLatency *prometheus.HistogramVec

	EmbeddingCacheHitsTotal   prometheus.Counter
	EmbeddingCacheMissesTotal prometheus.Counter

	// MemoryOperationsTotal counts best-effort memory operations by operation and
	// result (ResultOK, ResultSkipped, ResultError).
	MemoryOperationsTotal *prometheus.CounterVec

	// MemoryChunksStoredTotal counts chunks persisted by remember.
	MemoryChunksStoredTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers. Until it runs,
// every Observe*/Count* helper is a no-op.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_memory_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_memory_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	VectorStoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_memory_vector_store_latency_seconds",
			Help:    "Vector store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	TraceStoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_memory_trace_store_latency_seconds",
			Help:    "Procedural trace store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	EmbeddingLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_memory_embedding_latency_seconds",
			Help:    "Embedding backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "result"},
	)

	EmbeddingCacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "agent_memory_embedding_cache_hits_total",
		Help: "Total embedding cache hits",
	})

	EmbeddingCacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "agent_memory_embedding_cache_misses_total",
		Help: "Total embedding cache misses",
	})

	MemoryOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_memory_operations_total",
			Help: "Best-effort memory operations by result",
		},
		[]string{"operation", "result"},
	)

	MemoryChunksStoredTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "agent_memory_chunks_stored_total",
		Help: "Total semantic memory chunks stored",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "agent_memory_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "agent_memory_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// ObserveVectorStore records the latency of a vector store operation started at start.
func ObserveVectorStore(store, op string, start time.Time) {
	if VectorStoreLatency == nil {
		return
	}
	VectorStoreLatency.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// ObserveTraceStore records the latency of a trace store operation started at start.
func ObserveTraceStore(store, op string, start time.Time) {
	if TraceStoreLatency == nil {
		return
	}
	TraceStoreLatency.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// ObserveEmbedding records one embedding backend call.
func ObserveEmbedding(model string, start time.Time, err error) {
	if EmbeddingLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	EmbeddingLatency.WithLabelValues(model, result).Observe(time.Since(start).Seconds())
}

// CountEmbeddingCache records cache hits and misses for one lookup batch.
func CountEmbeddingCache(hits, misses int) {
	if EmbeddingCacheHitsTotal == nil {
		return
	}
	EmbeddingCacheHitsTotal.Add(float64(hits))
	EmbeddingCacheMissesTotal.Add(float64(misses))
}

// Results recorded by CountMemoryOperation.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// CountMemoryOperation records the result of a best-effort memory operation.
func CountMemoryOperation(op, result string) {
	if MemoryOperationsTotal == nil {
		return
	}
	MemoryOperationsTotal.WithLabelValues(op, result).Inc()
}

// CountChunksStored adds n to the stored chunk counter.
func CountChunksStored(n int) {
	if MemoryChunksStoredTotal == nil {
		return
	}
	MemoryChunksStoredTotal.Add(float64(n))
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
