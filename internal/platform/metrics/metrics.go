package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the download pipeline.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	downloadsTotal   prometheus.Counter
	cacheHitsTotal   prometheus.Counter
	conversionsTotal prometheus.Counter
	activeSessions   prometheus.Gauge
	errorsTotal      prometheus.Counter
	toolErrorsTotal  *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the pipeline server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videofetch_requests_total",
		Help: "Total number of HTTP requests received",
	})
	downloadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videofetch_downloads_total",
		Help: "Total number of download requests completed successfully",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videofetch_cache_hits_total",
		Help: "Total number of download requests served from the asset cache",
	})
	conversionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videofetch_conversions_total",
		Help: "Total number of transcode tool invocations",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videofetch_active_sessions",
		Help: "Number of status sessions currently registered",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videofetch_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	toolErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videofetch_tool_errors_total",
		Help: "Total number of external tool failures by stage",
	}, []string{"stage"})

	registry.MustRegister(
		requestsTotal,
		downloadsTotal,
		cacheHitsTotal,
		conversionsTotal,
		activeSessions,
		errorsTotal,
		toolErrorsTotal,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		downloadsTotal:   downloadsTotal,
		cacheHitsTotal:   cacheHitsTotal,
		conversionsTotal: conversionsTotal,
		activeSessions:   activeSessions,
		errorsTotal:      errorsTotal,
		toolErrorsTotal:  toolErrorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncDownloads increments the completed downloads counter.
func (m *Metrics) IncDownloads() {
	m.downloadsTotal.Inc()
}

// IncCacheHits increments the cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHitsTotal.Inc()
}

// IncConversions increments the transcode invocation counter.
func (m *Metrics) IncConversions() {
	m.conversionsTotal.Inc()
}

// SetActiveSessions sets the active status sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncErrors increments the HTTP errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncToolErrors increments the external tool failure counter for a stage
// ("fetch", "probe", or "convert").
func (m *Metrics) IncToolErrors(stage string) {
	m.toolErrorsTotal.WithLabelValues(stage).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
