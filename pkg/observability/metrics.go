package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Fragment lifecycle metrics
	FragmentLoadsTotal   *prometheus.CounterVec
	FragmentLoadDuration *prometheus.HistogramVec
	FragmentMountsTotal  *prometheus.CounterVec
	SlotsByPhase         *prometheus.GaugeVec

	// Auth bus metrics
	BusEventsPublished *prometheus.CounterVec
	BusEventsReceived  *prometheus.CounterVec
	BusEventsDropped   *prometheus.CounterVec

	// Auth synchronizer metrics
	SyncTransitionsTotal    *prometheus.CounterVec
	SyncRedirectsSuppressed *prometheus.CounterVec
	TokenRefreshesTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the portal's metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mosaic_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		FragmentLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_fragment_loads_total",
				Help: "Total number of fragment remote-entry loads",
			},
			[]string{"scope", "status"},
		),
		FragmentLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mosaic_fragment_load_duration_seconds",
				Help:    "Fragment load duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"scope"},
		),
		FragmentMountsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_fragment_mounts_total",
				Help: "Total number of fragment mount and unmount operations",
			},
			[]string{"scope", "operation", "status"},
		),
		SlotsByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mosaic_slots_by_phase",
				Help: "Number of UI slots in each lifecycle phase",
			},
			[]string{"phase"},
		),

		BusEventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_bus_events_published_total",
				Help: "Total number of auth events published",
			},
			[]string{"type"},
		),
		BusEventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_bus_events_received_total",
				Help: "Total number of auth events received",
			},
			[]string{"type"},
		),
		BusEventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_bus_events_dropped_total",
				Help: "Total number of malformed auth events dropped",
			},
			[]string{"reason"},
		),

		SyncTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_sync_transitions_total",
				Help: "Total number of auth synchronizer phase transitions",
			},
			[]string{"app", "to"},
		),
		SyncRedirectsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_sync_redirects_suppressed_total",
				Help: "Total number of sign-in redirects suppressed by policy",
			},
			[]string{"app", "reason"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_token_refreshes_total",
				Help: "Total number of scheduled silent token refreshes",
			},
			[]string{"client_id", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FragmentLoadsTotal,
		m.FragmentLoadDuration,
		m.FragmentMountsTotal,
		m.SlotsByPhase,
		m.BusEventsPublished,
		m.BusEventsReceived,
		m.BusEventsDropped,
		m.SyncTransitionsTotal,
		m.SyncRedirectsSuppressed,
		m.TokenRefreshesTotal,
	)

	return m
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests with count and duration.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
