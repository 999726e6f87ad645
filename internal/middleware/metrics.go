package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors the server exposes.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scansRunning    prometheus.Gauge
	scansTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		scansRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scans_running",
			Help: "Number of scans currently executing.",
		}),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Finished scans by terminal status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.scansRunning,
		m.scansTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency. routePattern should return
// the matched route template, not the raw path, to keep cardinality bounded.
func (m *Metrics) Middleware(routePattern func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(wrapped, r)

			path := routePattern(r)
			if path == "" {
				path = "unmatched"
			}
			m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// ScanStarted implements the scan observer hook.
func (m *Metrics) ScanStarted() {
	m.scansRunning.Inc()
}

// ScanFinished implements the scan observer hook.
func (m *Metrics) ScanFinished(status string) {
	m.scansRunning.Dec()
	m.scansTotal.WithLabelValues(status).Inc()
}
