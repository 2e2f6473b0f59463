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
	HTTPResponseSize    *prometheus.HistogramVec

	// Scope resolution metrics
	ScopeComputationsTotal   *prometheus.CounterVec
	ScopeComputationDuration prometheus.Histogram
	ScopeCacheHitsTotal      *prometheus.CounterVec
	ScopeCacheMissesTotal    prometheus.Counter

	// Access check metrics
	AccessChecksTotal *prometheus.CounterVec

	// Hierarchy metrics
	TreeMutationsTotal   *prometheus.CounterVec
	SubtreeMoveDuration  prometheus.Histogram
	IntegrityIssuesFound *prometheus.GaugeVec

	// Grant metrics
	GrantMutationsTotal *prometheus.CounterVec
	ActiveGrantsTotal   prometheus.Gauge
	ExpiredGrantsSwept  prometheus.Counter

	// Directory metrics
	DirectoryQueriesTotal  prometheus.Counter
	DirectoryQueryDuration prometheus.Histogram

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Business metrics
	NodesTotal prometheus.Gauge
	UsersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgscope_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgscope_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Scope resolution metrics
		ScopeComputationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_scope_computations_total",
				Help: "Total number of access-scope computations",
			},
			[]string{"status"},
		),
		ScopeComputationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orgscope_scope_computation_duration_seconds",
				Help:    "Access-scope computation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ScopeCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_scope_cache_hits_total",
				Help: "Total number of scope cache hits",
			},
			[]string{"tier"},
		),
		ScopeCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orgscope_scope_cache_misses_total",
				Help: "Total number of scope cache misses",
			},
		),

		// Access check metrics
		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_access_checks_total",
				Help: "Total number of access checks by kind and decision",
			},
			[]string{"kind", "decision"},
		),

		// Hierarchy metrics
		TreeMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_tree_mutations_total",
				Help: "Total number of hierarchy mutations",
			},
			[]string{"operation", "status"},
		),
		SubtreeMoveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orgscope_subtree_move_duration_seconds",
				Help:    "Subtree move duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
		),
		IntegrityIssuesFound: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgscope_integrity_issues",
				Help: "Hierarchy integrity issues found by the last scan",
			},
			[]string{"severity"},
		),

		// Grant metrics
		GrantMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgscope_grant_mutations_total",
				Help: "Total number of grant mutations",
			},
			[]string{"operation", "status"},
		),
		ActiveGrantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_active_grants_total",
				Help: "Number of active grants",
			},
		),
		ExpiredGrantsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orgscope_expired_grants_swept_total",
				Help: "Grants deactivated by the expiry sweep",
			},
		),

		// Directory metrics
		DirectoryQueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orgscope_directory_queries_total",
				Help: "Total number of scoped directory queries",
			},
		),
		DirectoryQueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orgscope_directory_query_duration_seconds",
				Help:    "Scoped directory query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Business metrics
		NodesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_nodes_total",
				Help: "Number of active hierarchy nodes",
			},
		),
		UsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgscope_users_total",
				Help: "Number of directory users",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.ScopeComputationsTotal,
		m.ScopeComputationDuration,
		m.ScopeCacheHitsTotal,
		m.ScopeCacheMissesTotal,
		m.AccessChecksTotal,
		m.TreeMutationsTotal,
		m.SubtreeMoveDuration,
		m.IntegrityIssuesFound,
		m.GrantMutationsTotal,
		m.ActiveGrantsTotal,
		m.ExpiredGrantsSwept,
		m.DirectoryQueriesTotal,
		m.DirectoryQueryDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.NodesTotal,
		m.UsersTotal,
	)

	return m
}

// UpdateDBStats updates database connection gauges from sql.DBStats values.
func (m *Metrics) UpdateDBStats(open, idle int, waitCount int64, waitDuration time.Duration) {
	m.DBConnectionsActive.Set(float64(open))
	m.DBConnectionsIdle.Set(float64(idle))
	m.DBConnectionsWaitCount.Set(float64(waitCount))
	m.DBConnectionsWaitDuration.Set(waitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
