// Package telemetry exposes Prometheus metrics for the translation engine
// and its HTTP service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backtrans"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationErrors   *prometheus.CounterVec
	Retries             prometheus.Counter
	ProviderLatency     prometheus.Histogram
	BLEUScore           prometheus.Histogram
	CacheEntries        prometheus.Gauge

	// Batch metrics
	BatchItems *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on registry. A nil registry
// gets a fresh one that also carries the Go and process collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		TranslationRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "translation_requests_total",
				Help:      "Translations served, by source (cache, fuzzy, api)",
			},
			[]string{"source"},
		),

		TranslationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "translation_errors_total",
				Help:      "Failed translations by error kind",
			},
			[]string{"kind"},
		),

		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "translation_retries_total",
				Help:      "Retried provider attempts",
			},
		),

		ProviderLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Latency of single provider requests",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
		),

		BLEUScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bleu_score",
				Help:      "BLEU score of completed backtranslations",
				Buckets:   []float64{0.2, 0.4, 0.6, 0.8, 1},
			},
		),

		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "translation_memory_entries",
				Help:      "Entries currently held in the translation memory",
			},
		),

		BatchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_items_total",
				Help:      "Processed batch items by status",
			},
			[]string{"status"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(source string) {
	if m == nil {
		return
	}
	m.TranslationRequests.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.TranslationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) ObserveProviderLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveBLEU(score float64) {
	if m == nil {
		return
	}
	m.BLEUScore.Observe(score)
}

func (m *Metrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// ObserveBatchItem counts one finished batch item; status is "ok" or
// "failed".
func (m *Metrics) ObserveBatchItem(status string) {
	if m == nil {
		return
	}
	m.BatchItems.WithLabelValues(status).Inc()
}
