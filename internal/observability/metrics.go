package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "context_retrieval"

// RetrievalMetrics holds the pipeline collectors. A nil *RetrievalMetrics is
// valid and records nothing.
type RetrievalMetrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamLatency *prometheus.HistogramVec
	chunksReturned  prometheus.Histogram
	recallScore     prometheus.Histogram
	exclusions      *prometheus.CounterVec
	warnings        *prometheus.CounterVec
	cacheErrors     *prometheus.CounterVec
}

// NewRetrievalMetrics registers the pipeline collectors, plus the Go and
// process collectors, on a fresh registry.
func NewRetrievalMetrics() *RetrievalMetrics {
	m := &RetrievalMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Retrieval requests by outcome and cache status.",
		}, []string{"outcome", "cache_status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end retrieval latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"cache_status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of vector search provider calls.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider", "outcome"}),
		chunksReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_returned",
			Help:      "Chunks returned per computed result.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 30, 50},
		}),
		recallScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recall_score",
			Help:      "Recall score per computed result.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		exclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_exclusions_total",
			Help:      "Chunks dropped by the quality filter, by first failed rule.",
		}, []string{"reason"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Quality warnings attached to results.",
		}, []string{"type", "severity"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache store failures degraded to a miss.",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.upstreamLatency, m.chunksReturned,
		m.recallScore, m.exclusions, m.warnings, m.cacheErrors,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *RetrievalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished retrieval. outcome is "ok" or an error type.
func (m *RetrievalMetrics) ObserveRequest(outcome, cacheStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome, cacheStatus).Inc()
	if outcome == "ok" {
		m.requestDuration.WithLabelValues(cacheStatus).Observe(d.Seconds())
	}
}

// ObserveUpstream records one provider call.
func (m *RetrievalMetrics) ObserveUpstream(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

// ObserveResult records the size and recall of a computed result.
func (m *RetrievalMetrics) ObserveResult(chunks int, recall float64) {
	if m == nil {
		return
	}
	m.chunksReturned.Observe(float64(chunks))
	m.recallScore.Observe(recall)
}

func (m *RetrievalMetrics) IncExclusion(reason string) {
	if m == nil {
		return
	}
	m.exclusions.WithLabelValues(reason).Inc()
}

func (m *RetrievalMetrics) IncWarning(warningType, severity string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(warningType, severity).Inc()
}

func (m *RetrievalMetrics) IncCacheError(operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(operation).Inc()
}
