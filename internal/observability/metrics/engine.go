package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineMetrics aggregates the retrieval engine's prometheus collectors in a
// private registry.
type EngineMetrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	retryLevelTotal    *prometheus.CounterVec
	answerRetriesTotal prometheus.Counter
	cacheEventsTotal   *prometheus.CounterVec
	rerankFallbacks    prometheus.Counter
	domainsMatched     prometheus.Histogram
	documentsMerged    prometheus.Histogram
}

func NewEngineMetrics(namespace, service string) *EngineMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total consultation requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	retryLevelTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "retry_level_total",
			Help:      "Retrieval retry escalations fired by level.",
		},
		[]string{"service", "level"},
	)
	answerRetriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "answer_retries_total",
			Help:      "Answer evaluation failures that re-entered retrieval.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	cacheEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Response cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	rerankFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "fallback_total",
			Help:      "Reranker degradations to lexical-overlap ranking.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	domainsMatched := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "domains_matched",
			Help:      "Distribution of matched domains per relevant request.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsMerged := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "documents_merged",
			Help:      "Distribution of merged documents per answered request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestsTotal,
		stageDuration,
		retryLevelTotal,
		answerRetriesTotal,
		cacheEventsTotal,
		rerankFallbacks,
		domainsMatched,
		documentsMerged,
	)

	return &EngineMetrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		stageDuration:      stageDuration,
		retryLevelTotal:    retryLevelTotal,
		answerRetriesTotal: answerRetriesTotal,
		cacheEventsTotal:   cacheEventsTotal,
		rerankFallbacks:    rerankFallbacks,
		domainsMatched:     domainsMatched,
		documentsMerged:    documentsMerged,
	}
}

func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EngineMetrics) RecordRequest(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.requestsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *EngineMetrics) ObserveStage(service, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(service, stage).Observe(d.Seconds())
}

func (m *EngineMetrics) RecordRetryLevel(service, level string) {
	m.retryLevelTotal.WithLabelValues(service, level).Inc()
}

func (m *EngineMetrics) RecordAnswerRetry() {
	m.answerRetriesTotal.Inc()
}

func (m *EngineMetrics) RecordCacheEvent(service, result string) {
	m.cacheEventsTotal.WithLabelValues(service, result).Inc()
}

func (m *EngineMetrics) RecordRerankFallback() {
	m.rerankFallbacks.Inc()
}

func (m *EngineMetrics) ObserveDomainsMatched(count int) {
	m.domainsMatched.Observe(float64(count))
}

func (m *EngineMetrics) ObserveDocumentsMerged(count int) {
	m.documentsMerged.Observe(float64(count))
}
