package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	SchemeSelectionsTotal *prometheus.CounterVec
	AuthFailuresTotal     *prometheus.CounterVec

	// Authorization metrics
	AuthDecisionsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal        *prometheus.CounterVec
	CacheMissesTotal      *prometheus.CounterVec
	CacheInvalidatesTotal *prometheus.CounterVec

	// Introspection metrics
	IntrospectionRequestsTotal *prometheus.CounterVec
	IntrospectionDuration      prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formloft_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SchemeSelectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_auth_scheme_selections_total",
				Help: "Verification scheme selections by scheme name",
			},
			[]string{"scheme"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_auth_failures_total",
				Help: "Authentication failures by scheme and reason",
			},
			[]string{"scheme", "reason"},
		),

		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_authz_decisions_total",
				Help: "Authorization decisions by outcome",
			},
			[]string{"decision"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_cache_hits_total",
				Help: "Cache hits by cache name",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_cache_misses_total",
				Help: "Cache misses by cache name",
			},
			[]string{"cache"},
		),
		CacheInvalidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_cache_invalidations_total",
				Help: "Cache invalidations by cache name and scope",
			},
			[]string{"cache", "scope"},
		),

		IntrospectionRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formloft_introspection_requests_total",
				Help: "Token introspection requests by HTTP status",
			},
			[]string{"status"},
		),
		IntrospectionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "formloft_introspection_duration_seconds",
				Help:    "Token introspection round-trip latency",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SchemeSelectionsTotal,
		m.AuthFailuresTotal,
		m.AuthDecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidatesTotal,
		m.IntrospectionRequestsTotal,
		m.IntrospectionDuration,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveIntrospection records an introspection round trip
func (m *Metrics) ObserveIntrospection(status int, duration time.Duration) {
	m.IntrospectionRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.IntrospectionDuration.Observe(duration.Seconds())
}
