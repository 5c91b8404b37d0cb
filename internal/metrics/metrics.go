// Package metrics exposes Prometheus collectors for Earth Engine traffic,
// analysis runs, the tile cache and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lakewatch"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	eeRequests       *prometheus.CounterVec
	analysisRuns     *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	cachedMonths     prometheus.Counter
	overlays         *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		eeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "earthengine",
			Name:      "requests_total",
			Help:      "Earth Engine REST requests by method and outcome.",
		}, []string{"method", "outcome"}),
		analysisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Finished analysis runs by status.",
		}, []string{"status"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Wall time of analysis runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		}),
		cachedMonths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "cached_months_total",
			Help:      "Monthly areas served from the store instead of Earth Engine.",
		}),
		overlays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "refreshes_total",
			Help:      "Water overlay refreshes by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		m.eeRequests,
		m.analysisRuns,
		m.analysisDuration,
		m.cachedMonths,
		m.overlays,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEarthEngine counts one Earth Engine request. It matches the
// earthengine.WithObserver callback.
func (m *Metrics) ObserveEarthEngine(method, outcome string) {
	m.eeRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveRun records a finished analysis run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	m.analysisRuns.WithLabelValues(status).Inc()
	m.analysisDuration.Observe(d.Seconds())
}

// AddCachedMonths counts monthly areas served from the store.
func (m *Metrics) AddCachedMonths(n int) {
	if n > 0 {
		m.cachedMonths.Add(float64(n))
	}
}

// ObserveOverlay counts an overlay refresh.
func (m *Metrics) ObserveOverlay(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.overlays.WithLabelValues(outcome).Inc()
}

// RegisterTileCache exposes the tile cache size, hits and misses. stats is
// read at scrape time.
func (m *Metrics) RegisterTileCache(stats func() (entries int, hits, misses int64)) {
	m.Registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "cache_entries",
			Help:      "Tiles held in the in-memory cache.",
		}, func() float64 {
			n, _, _ := stats()
			return float64(n)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "cache_hits_total",
			Help:      "Tile requests served from the cache.",
		}, func() float64 {
			_, h, _ := stats()
			return float64(h)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "cache_misses_total",
			Help:      "Tile requests fetched upstream.",
		}, func() float64 {
			_, _, miss := stats()
			return float64(miss)
		}),
	)
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations labeled by chi route
// pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
