package geospatial

import (
	"context"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// ErrNoMap is returned by an overlay source before any map was set.
var ErrNoMap = eris.New("geo: no overlay map")

// TileSource produces tiles for one layer.
type TileSource interface {
	Fetch(ctx context.Context, z, x, y int) (Tile, error)
}

// VersionedSource is a TileSource whose tiles are replaced as a whole, such
// as an overlay whose map is swapped. The proxy caches tiles per version.
type VersionedSource interface {
	TileSource
	Version() string
}

// URLSource fetches tiles from an upstream server using a template with
// {z}, {x}, {y} and optional {s} subdomain placeholders, for example
// https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png.
type URLSource struct {
	template   string
	subdomains []string
	userAgent  string
	client     *http.Client
	next       atomic.Uint64
}

// NewURLSource creates an upstream tile source.
func NewURLSource(template, userAgent string) *URLSource {
	return &URLSource{
		template:   template,
		subdomains: []string{"a", "b", "c"},
		userAgent:  userAgent,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// URL expands the template for a tile.
func (s *URLSource) URL(z, x, y int) string {
	sub := s.subdomains[s.next.Add(1)%uint64(len(s.subdomains))]
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", sub,
	).Replace(s.template)
}

// Fetch downloads a tile from the upstream server.
func (s *URLSource) Fetch(ctx context.Context, z, x, y int) (Tile, error) {
	url := s.URL(z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: create basemap request")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: fetch basemap tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Tile{}, eris.Errorf("geo: basemap upstream returned %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tile{}, eris.Wrap(err, "geo: read basemap tile body")
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = contentTypeForExt(path.Ext(s.template))
	}
	zap.L().Debug("geo: fetched basemap tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return Tile{Data: data, ContentType: ct}, nil
}

// OverlaySource serves tiles of the current Earth Engine map. The map is
// swapped when a newer overlay replaces it.
type OverlaySource struct {
	client ee.Client

	mu      sync.RWMutex
	mapName string
}

// NewOverlaySource creates an overlay source with no map.
func NewOverlaySource(client ee.Client) *OverlaySource {
	return &OverlaySource{client: client}
}

// SetMap replaces the current map and reports whether it changed.
func (s *OverlaySource) SetMap(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.mapName != name
	s.mapName = name
	return changed
}

// MapName returns the current map name.
func (s *OverlaySource) MapName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapName
}

// Version identifies the current map.
func (s *OverlaySource) Version() string {
	return s.MapName()
}

// Fetch downloads a tile of the current map from Earth Engine.
func (s *OverlaySource) Fetch(ctx context.Context, z, x, y int) (Tile, error) {
	name := s.MapName()
	if name == "" {
		return Tile{}, ErrNoMap
	}
	data, ct, err := s.client.FetchTile(ctx, name, z, x, y)
	if err != nil {
		return Tile{}, eris.Wrapf(err, "geo: fetch overlay tile %d/%d/%d", z, x, y)
	}
	return Tile{Data: data, ContentType: ct}, nil
}

func contentTypeForExt(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
