package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	FilterResults       *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Grant audit metrics
	ExpiredGrants       prometheus.Gauge
	GrantAuditRunsTotal *prometheus.CounterVec

	// Access change notification metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eams_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eams_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_authz_decisions_total",
				Help: "Total number of authorization decisions by check and result",
			},
			[]string{"check", "result"},
		),
		FilterResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eams_filter_results",
				Help:    "Number of records left visible after access-scope filtering",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"resource"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_user_cache_hits_total",
				Help: "Total number of user cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_user_cache_misses_total",
				Help: "Total number of user cache misses",
			},
			[]string{"tier"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eams_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eams_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eams_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		ExpiredGrants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eams_expired_grants",
				Help: "Company access grants past their expiry at the last audit",
			},
		),
		GrantAuditRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_grant_audit_runs_total",
				Help: "Total number of grant audit runs",
			},
			[]string{"status"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eams_webhook_deliveries_total",
				Help: "Webhook delivery attempts by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.FilterResults,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.ExpiredGrants,
		m.GrantAuditRunsTotal,
		m.WebhookDeliveriesTotal,
	)

	return m
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(check string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(check, result).Inc()
}

// RecordFilter observes how many records survived a list filter
func (m *Metrics) RecordFilter(resource string, visible int) {
	if m == nil {
		return
	}
	m.FilterResults.WithLabelValues(resource).Observe(float64(visible))
}

// CacheHit counts a user cache hit on tier
func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

// CacheMiss counts a user cache miss on tier
func (m *Metrics) CacheMiss(tier string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordDBStats copies pool statistics into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// RecordGrantAudit records the outcome of one audit run
func (m *Metrics) RecordGrantAudit(expired int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.GrantAuditRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.GrantAuditRunsTotal.WithLabelValues("success").Inc()
	m.ExpiredGrants.Set(float64(expired))
}

// RecordWebhookDelivery counts one delivery attempt. status is success, retrying
// or failed.
func (m *Metrics) RecordWebhookDelivery(status string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
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

// routeLabel returns the mux route template so IDs do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
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

			route := routeLabel(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
