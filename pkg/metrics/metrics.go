// Package metrics defines the Prometheus collectors for completion requests,
// artifact indexes and project model builds, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RequestsTotal        *prometheus.CounterVec
	RequestLatency       *prometheus.HistogramVec
	CompletionItemsCount prometheus.Histogram
	PlaceholdersTotal    *prometheus.CounterVec
	RemoteQueriesTotal   *prometheus.CounterVec
	RemoteQueryLatency   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	LocalArtifacts       prometheus.Gauge
	LocalScansTotal      *prometheus.CounterVec
	ModelBuildsTotal     *prometheus.CounterVec
	SnapshotFlushesTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
	DiagnosticsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates all collectors and registers them with reg. A nil reg gets a
// fresh private registry, which is what Handler serves.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pomassist_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pomassist_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_requests_total",
				Help: "Editor requests by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pomassist_request_latency_seconds",
				Help:    "Editor request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		CompletionItemsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pomassist_completion_items",
				Help:    "Number of items returned per completion request.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		PlaceholdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_placeholders_total",
				Help: "Placeholder items emitted for sources that missed the deadline.",
			},
			[]string{"source"},
		),
		RemoteQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_remote_queries_total",
				Help: "Remote index queries by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		RemoteQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pomassist_remote_query_latency_seconds",
				Help:    "Remote index query latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pomassist_cache_hits_total",
				Help: "Total number of remote result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pomassist_cache_misses_total",
				Help: "Total number of remote result cache misses.",
			},
		),
		LocalArtifacts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pomassist_local_artifacts",
				Help: "Artifacts known from the last local repository scan.",
			},
		),
		LocalScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_local_scans_total",
				Help: "Local repository scans by status.",
			},
			[]string{"status"},
		),
		ModelBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_model_builds_total",
				Help: "Project model builds by outcome.",
			},
			[]string{"outcome"},
		),
		SnapshotFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_snapshot_flushes_total",
				Help: "Remote index snapshot flushes by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pomassist_source_state",
				Help: "Remote source breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"source"},
		),
		DiagnosticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pomassist_diagnostics_total",
				Help: "Diagnostics emitted by check.",
			},
			[]string{"check", "severity"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RequestsTotal,
		m.RequestLatency,
		m.CompletionItemsCount,
		m.PlaceholdersTotal,
		m.RemoteQueriesTotal,
		m.RemoteQueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LocalArtifacts,
		m.LocalScansTotal,
		m.ModelBuildsTotal,
		m.SnapshotFlushesTotal,
		m.CircuitBreakerState,
		m.DiagnosticsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
