package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianpos/meridian/internal/journal"
)

// Metrics collects Prometheus metrics for the ledger service. It satisfies
// both journal.Metrics and the reconciliation metrics port.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postingsTotal   *prometheus.CounterVec
	idempotentHits  *prometheus.CounterVec
	matchesTotal    *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_ledger_postings_total",
		Help: "Journal entries posted, by source.",
	}, []string{"source"})
	idempotent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_ledger_idempotent_hits_total",
		Help: "Postings skipped because the business event was already recorded.",
	}, []string{"source"})
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_bankrec_matches_total",
		Help: "Bank transactions reconciled, by mode.",
	}, []string{"mode"})
	registry.MustRegister(requests, duration, postings, idempotent, matches)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postingsTotal:   postings,
		idempotentHits:  idempotent,
		matchesTotal:    matches,
	}
}

// ObservePosting counts a posted journal entry.
func (m *Metrics) ObservePosting(source journal.Source) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(string(source)).Inc()
}

// ObserveIdempotentHit counts a deduplicated posting attempt.
func (m *Metrics) ObserveIdempotentHit(source journal.Source) {
	if m == nil {
		return
	}
	m.idempotentHits.WithLabelValues(string(source)).Inc()
}

// ObserveMatch counts a reconciled bank transaction.
func (m *Metrics) ObserveMatch(auto bool) {
	if m == nil {
		return
	}
	mode := "manual"
	if auto {
		mode = "auto"
	}
	m.matchesTotal.WithLabelValues(mode).Inc()
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
