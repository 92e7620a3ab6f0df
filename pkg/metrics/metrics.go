// Package metrics defines the Prometheus collectors shared by the query,
// ingestion and analytics services and serves them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

var (
	httpBuckets  = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	stageBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestDuration  *prometheus.HistogramVec

	// Pipeline.
	QueriesTotal     *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
	FusedCandidates  prometheus.Histogram
	DegenerateScores *prometheus.CounterVec
	CollaboratorErrs *prometheus.CounterVec
	FallbacksTotal   *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Corpus lifecycle.
	IndexBuildsTotal    *prometheus.CounterVec
	CorpusChunks        prometheus.Gauge
	PipelineState       prometheus.Gauge
	ChunksIngestedTotal prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New registers every collector with reg; nil means the default registerer.
// Registering twice with the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: httpBuckets,
		}, []string{"method", "path"}),

		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Pipeline queries by outcome (answered, no_evidence, empty_query, error).",
		}, []string{"outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stages (expand, retrieve, rerank, compress, generate).",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
		FusedCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fused_candidates",
			Help:      "Distinct chunks in the fused map before truncation to k.",
			Buckets:   []float64{0, 5, 10, 20, 40, 60, 80, 100, 150},
		}),
		DegenerateScores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_normalizations_total",
			Help:      "Score lists left unnormalised because every score was equal.",
		}, []string{"side"}),
		CollaboratorErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Failures of external collaborators by name.",
		}, []string{"collaborator"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Degraded-mode fallbacks taken by stage.",
		}, []string{"stage"}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Answer and retrieval cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Answer and retrieval cache misses.",
		}),

		IndexBuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds and rebuilds by status.",
		}, []string{"status"}),
		CorpusChunks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_chunks",
			Help:      "Chunks in the active corpus snapshot.",
		}),
		PipelineState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Pipeline lifecycle state (0=uninitialized, 1=indexing, 2=ready, 3=rebuilding).",
		}),
		ChunksIngestedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks persisted by the ingestion service.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per collaborator (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}

// NewUnregistered builds a Metrics backed by a private registry, for tests
// and short-lived CLI runs.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
