package geospatial

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lakewatch/pkg/earthengine/mocks"
)

func newUpstream(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "lakewatch-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("tile:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestURLSource_Template(t *testing.T) {
	src := NewURLSource("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", "")

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[src.URL(8, 213, 107)] = true
	}
	assert.Len(t, seen, 3, "subdomains rotate")
	for u := range seen {
		assert.Contains(t, u, ".tile.openstreetmap.org/8/213/107.png")
	}
}

func TestURLSource_Fetch(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)

	src := NewURLSource(srv.URL+"/{z}/{x}/{y}.png", "lakewatch-test")
	tile, err := src.Fetch(context.Background(), 10, 512, 384)
	require.NoError(t, err)
	assert.Equal(t, "tile:/10/512/384.png", string(tile.Data))
	assert.NotEmpty(t, tile.ContentType)
}

func TestURLSource_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewURLSource(srv.URL+"/{z}/{x}/{y}.png", "").Fetch(context.Background(), 1, 0, 0)
	assert.Error(t, err)
}

func TestContentTypeForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".png", "image/png"},
		{".JPG", "image/jpeg"},
		{".jpeg", "image/jpeg"},
		{".webp", "image/webp"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, contentTypeForExt(tt.ext), tt.ext)
	}
}

func TestOverlaySource(t *testing.T) {
	client := mocks.NewMockClient(t)
	src := NewOverlaySource(client)

	_, err := src.Fetch(context.Background(), 1, 0, 0)
	assert.ErrorIs(t, err, ErrNoMap)

	assert.True(t, src.SetMap("projects/p/maps/a"))
	assert.False(t, src.SetMap("projects/p/maps/a"))

	client.On("FetchTile", mock.Anything, "projects/p/maps/a", 3, 4, 5).
		Return([]byte("water-tile"), "image/png", nil).Once()

	tile, err := src.Fetch(context.Background(), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, "water-tile", string(tile.Data))
	assert.Equal(t, "image/png", tile.ContentType)
}

func TestTileProxy_CacheHit(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)

	proxy := NewTileProxy(map[string]TileSource{
		"osm": NewURLSource(srv.URL+"/{z}/{x}/{y}.png", "lakewatch-test"),
	}, NewTileCache(100, 10*time.Minute))

	for i := 0; i < 2; i++ {
		_, err := proxy.Fetch(context.Background(), "osm", 5, 10, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	proxy.Invalidate("osm")
	_, err := proxy.Fetch(context.Background(), "osm", 5, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	_, err = proxy.Fetch(context.Background(), "nope", 5, 10, 10)
	assert.Error(t, err)
}

func TestTileProxy_ServeHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)

	client := mocks.NewMockClient(t)
	overlay := NewOverlaySource(client)
	proxy := NewTileProxy(map[string]TileSource{
		"osm":   NewURLSource(srv.URL+"/{z}/{x}/{y}.png", "lakewatch-test"),
		"water": overlay,
	}, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"basemap", "/osm/2/1/3.png", http.StatusOK},
		{"unknown layer", "/roads/2/1/3.png", http.StatusNotFound},
		{"bad path", "/osm/2/1", http.StatusBadRequest},
		{"bad z", "/osm/z/1/3.png", http.StatusBadRequest},
		{"bad y", "/osm/2/1/y.png", http.StatusBadRequest},
		{"out of range", "/osm/2/4/0.png", http.StatusNoContent},
		{"no overlay yet", "/water/2/1/1.png", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/osm/2/1/3.png", nil))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "tile:/2/1/3.png", rec.Body.String())

	overlay.SetMap("projects/p/maps/m")
	client.On("FetchTile", mock.Anything, "projects/p/maps/m", 2, 1, 1).
		Return(nil, "", errors.New("boom")).Once()
	rec = httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/water/2/1/1.png", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTileProxy_OverlaySwapDuringFetch(t *testing.T) {
	client := mocks.NewMockClient(t)
	overlay := NewOverlaySource(client)
	overlay.SetMap("old")
	proxy := NewTileProxy(map[string]TileSource{"water": overlay}, NewTileCache(100, time.Hour))

	started := make(chan struct{})
	release := make(chan struct{})
	client.On("FetchTile", mock.Anything, "old", 4, 3, 2).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]byte("old"), "image/png", nil).Once()
	client.On("FetchTile", mock.Anything, "new", 4, 3, 2).
		Return([]byte("new"), "image/png", nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		tile, err := proxy.Fetch(context.Background(), "water", 4, 3, 2)
		assert.NoError(t, err)
		assert.Equal(t, "old", string(tile.Data))
	}()

	<-started
	overlay.SetMap("new")
	proxy.Invalidate("water")
	close(release)
	<-done

	for i := 0; i < 2; i++ {
		tile, err := proxy.Fetch(context.Background(), "water", 4, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, "new", string(tile.Data))
	}
}
