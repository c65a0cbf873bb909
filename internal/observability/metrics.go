package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus series of the rollup service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchPages      *prometheus.CounterVec
	fetchRecords    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	partialLoads    *prometheus.CounterVec
	unparseable     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	integrity       prometheus.Counter
}

// NewMetrics initialises the registry and its collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollup_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_erp_pages_total",
		Help: "ERP page requests by table and outcome.",
	}, []string{"table", "status"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_erp_records_total",
		Help: "Records received from the ERP by table.",
	}, []string{"table"})
	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollup_erp_page_duration_seconds",
		Help:    "ERP page request duration by table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"table"})
	partial := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_partial_loads_total",
		Help: "Table loads that finished without every declared record.",
	}, []string{"table"})
	unparseable := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_unparseable_records_total",
		Help: "Records excluded from a derived view because a field could not be normalised.",
	}, []string{"source", "reason"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollup_cache_lookups_total",
		Help: "Cache lookups by namespace and result.",
	}, []string{"namespace", "result"})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollup_consolidation_integrity_failures_total",
		Help: "Vendor consolidations whose totals diverged from the raw totals.",
	})
	registry.MustRegister(requests, duration, pages, records, fetchDuration, partial, unparseable, lookups, integrity)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		fetchPages:      pages,
		fetchRecords:    records,
		fetchDuration:   fetchDuration,
		partialLoads:    partial,
		unparseable:     unparseable,
		cacheLookups:    lookups,
		integrity:       integrity,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request under its chi route pattern.
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

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObservePage records one ERP page request.
func (m *Metrics) ObservePage(table string, records int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.fetchPages.WithLabelValues(table, status).Inc()
	m.fetchDuration.WithLabelValues(table).Observe(duration.Seconds())
	if records > 0 {
		m.fetchRecords.WithLabelValues(table).Add(float64(records))
	}
}

// PartialLoad counts a table that loaded with complete=false.
func (m *Metrics) PartialLoad(table string) {
	if m == nil {
		return
	}
	m.partialLoads.WithLabelValues(table).Inc()
}

// Unparseable counts records dropped from a derived view.
func (m *Metrics) Unparseable(source, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.unparseable.WithLabelValues(source, reason).Add(float64(count))
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// IntegrityFailure counts a diverging consolidation.
func (m *Metrics) IntegrityFailure() {
	if m == nil {
		return
	}
	m.integrity.Inc()
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
