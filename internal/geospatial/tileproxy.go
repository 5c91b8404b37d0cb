package geospatial

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MaxZoom is the deepest zoom level served.
const MaxZoom = 22

// TileProxy serves named tile layers through a shared cache.
type TileProxy struct {
	layers map[string]TileSource
	cache  *TileCache
	maxAge int
}

// NewTileProxy creates a proxy over the given layers. cache may be nil.
func NewTileProxy(layers map[string]TileSource, cache *TileCache) *TileProxy {
	return &TileProxy{layers: layers, cache: cache, maxAge: 3600}
}

// Layers returns the registered layer names.
func (p *TileProxy) Layers() []string {
	names := make([]string, 0, len(p.layers))
	for name := range p.layers {
		names = append(names, name)
	}
	return names
}

// Fetch returns a tile from the cache or the layer's source.
func (p *TileProxy) Fetch(ctx context.Context, layer string, z, x, y int) (Tile, error) {
	src, ok := p.layers[layer]
	if !ok {
		return Tile{}, eris.Errorf("geo: unknown layer %q", layer)
	}

	// Versioned layers cache under layer/version, so a fetch that started
	// before the version changed can never be served for the new one.
	key := layer
	if v, ok := src.(VersionedSource); ok {
		version := v.Version()
		if version == "" {
			return Tile{}, ErrNoMap
		}
		key = layer + "/" + version
	}

	if p.cache != nil {
		if tile, ok := p.cache.Get(key, z, x, y); ok {
			return tile, nil
		}
	}

	tile, err := src.Fetch(ctx, z, x, y)
	if err != nil {
		return Tile{}, err
	}
	if p.cache != nil {
		p.cache.Put(key, z, x, y, tile)
	}
	return tile, nil
}

// Invalidate drops the cached tiles of layer.
func (p *TileProxy) Invalidate(layer string) {
	if p.cache == nil {
		return
	}
	n := p.cache.Invalidate(layer)
	zap.L().Debug("geo: invalidated tile layer", zap.String("layer", layer), zap.Int("tiles", n))
}

// ServeHTTP handles /{layer}/{z}/{x}/{y}.png after prefix stripping.
func (p *TileProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	layer := parts[0]
	if _, ok := p.layers[layer]; !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	z, err := strconv.Atoi(parts[1])
	if err != nil {
		http.Error(w, "invalid z coordinate", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(parts[2])
	if err != nil {
		http.Error(w, "invalid x coordinate", http.StatusBadRequest)
		return
	}
	yStr := parts[3]
	if i := strings.IndexByte(yStr, '.'); i >= 0 {
		yStr = yStr[:i]
	}
	y, err := strconv.Atoi(yStr)
	if err != nil {
		http.Error(w, "invalid y coordinate", http.StatusBadRequest)
		return
	}

	if z < 0 || z > MaxZoom || x < 0 || y < 0 || x >= 1<<z || y >= 1<<z {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tile, err := p.Fetch(r.Context(), layer, z, x, y)
	switch {
	case errors.Is(err, ErrNoMap):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		zap.L().Error("tile fetch failed", zap.String("layer", layer), zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", tile.ContentType)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(p.maxAge))
	_, _ = w.Write(tile.Data)
}
