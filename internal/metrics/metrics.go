// Package metrics exposes Prometheus counters for the HTTP surface and the
// login hardening components.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build several servers
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	rateLimited   prometheus.Counter
	loginFailures prometheus.Counter
	blacklisted   prometheus.Counter
	uploads       prometheus.Counter
	uploadedBytes prometheus.Counter
}

// New registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "login_failures_total",
			Help:      "Failed login attempts counted by the lockout guard.",
		}),
		blacklisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "blacklisted_ips_total",
			Help:      "IPs added to the login blacklist.",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "uploads_total",
			Help:      "Screenshots stored.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotserver",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of screenshot data stored.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.rateLimited,
		m.loginFailures,
		m.blacklisted,
		m.uploads,
		m.uploadedBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts one finished request; nil receivers are no-ops
func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RateLimited counts one 429
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// LoginFailed counts one failed login, and a blacklist event when it tipped the IP over
func (m *Metrics) LoginFailed(blacklisted bool) {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
	if blacklisted {
		m.blacklisted.Inc()
	}
}

// Uploaded counts one stored screenshot
func (m *Metrics) Uploaded(size int64) {
	if m == nil {
		return
	}
	m.uploads.Inc()
	m.uploadedBytes.Add(float64(size))
}
