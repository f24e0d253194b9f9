package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the authorization service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Resolver metrics
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzDecisionDuration prometheus.Histogram
	AuthzCacheHitsTotal   prometheus.Counter
	AuthzCacheMissesTotal prometheus.Counter

	// Store metrics
	StoreErrorsTotal *prometheus.CounterVec

	// Janitor metrics
	JanitorPurgedTotal prometheus.Counter
	JanitorRunsTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gaia_authz_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gaia_authz_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gaia_authz_decisions_total",
				Help: "Authorization decisions by outcome and matched rule kind",
			},
			[]string{"decision", "rule_kind"},
		),
		AuthzDecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gaia_authz_decision_duration_seconds",
				Help:    "Authorization resolution latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
		AuthzCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gaia_authz_cache_hits_total",
				Help: "Decision cache hits",
			},
		),
		AuthzCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gaia_authz_cache_misses_total",
				Help: "Decision cache misses, including generation-stale entries",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gaia_authz_store_errors_total",
				Help: "Store lookup failures by operation",
			},
			[]string{"operation"},
		),
		JanitorPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gaia_authz_janitor_purged_assignments_total",
				Help: "Expired role assignments removed by the janitor",
			},
		),
		JanitorRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gaia_authz_janitor_runs_total",
				Help: "Janitor runs by status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.AuthzCacheHitsTotal,
		m.AuthzCacheMissesTotal,
		m.StoreErrorsTotal,
		m.JanitorPurgedTotal,
		m.JanitorRunsTotal,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for metrics labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMetricsMiddleware records request counts and latency per route.
func (m *Metrics) HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		elapsed := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed)
	})
}
