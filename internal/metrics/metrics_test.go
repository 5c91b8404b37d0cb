package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEarthEngine(t *testing.T) {
	m := New()
	m.ObserveEarthEngine("compute", "ok")
	m.ObserveEarthEngine("compute", "ok")
	m.ObserveEarthEngine("compute", "transient")

	assert.InDelta(t, 2, testutil.ToFloat64(m.eeRequests.WithLabelValues("compute", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.eeRequests.WithLabelValues("compute", "transient")), 0)
}

func TestObserveRunAndOverlay(t *testing.T) {
	m := New()
	m.ObserveRun("complete", 3*time.Second)
	m.ObserveRun("failed", time.Second)
	m.AddCachedMonths(24)
	m.AddCachedMonths(0)
	m.ObserveOverlay(nil)
	m.ObserveOverlay(errors.New("boom"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.analysisRuns.WithLabelValues("complete")), 0)
	assert.InDelta(t, 24, testutil.ToFloat64(m.cachedMonths), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.overlays.WithLabelValues("error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.analysisDuration))
}

func TestHandlerExposesTileGauge(t *testing.T) {
	m := New()
	m.RegisterTileCache(func() (int, int64, int64) { return 7, 5, 2 })
	m.ObserveEarthEngine("maps.create", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "lakewatch_tiles_cache_entries 7")
	assert.Contains(t, body, "lakewatch_tiles_cache_hits_total 5")
	assert.Contains(t, body, "lakewatch_tiles_cache_misses_total 2")
	assert.Contains(t, body, `lakewatch_earthengine_requests_total{method="maps.create",outcome="ok"} 1`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/runs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/runs/{id}", "418")), 0)

	count, err := testutil.GatherAndCount(m.Registry, "lakewatch_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
