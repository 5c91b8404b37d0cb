// Package geospatial serves raster map tiles: an OpenStreetMap-style basemap
// and the Earth Engine water overlay, both behind an in-memory LRU cache.
package geospatial

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Tile is an encoded raster tile.
type Tile struct {
	Data        []byte
	ContentType string
}

// TileCache is a concurrent-safe LRU cache of tiles with TTL expiration.
// A TTL of zero keeps tiles until they are evicted.
type TileCache struct {
	lru        *expirable.LRU[string, Tile]
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewTileCache creates a new TileCache with the given capacity and TTL.
func NewTileCache(maxEntries int, ttl time.Duration) *TileCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TileCache{
		lru:        expirable.NewLRU[string, Tile](maxEntries, nil, ttl),
		maxEntries: maxEntries,
	}
}

// tileKey builds the cache key for a tile.
func tileKey(layer string, z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d", layer, z, x, y)
}

// Get retrieves a cached tile.
func (c *TileCache) Get(layer string, z, x, y int) (Tile, bool) {
	tile, ok := c.lru.Get(tileKey(layer, z, x, y))
	if !ok {
		c.misses.Add(1)
		return Tile{}, false
	}
	c.hits.Add(1)
	return tile, true
}

// Put stores a tile, evicting the least recently used entry at capacity.
func (c *TileCache) Put(layer string, z, x, y int, tile Tile) {
	c.lru.Add(tileKey(layer, z, x, y), tile)
}

// Invalidate removes every cached tile of layer, including tiles cached
// under versions of it ("layer/version").
func (c *TileCache) Invalidate(layer string) int {
	prefix := layer + "/"
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) && c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of cached tiles.
func (c *TileCache) Len() int {
	return c.lru.Len()
}

// Stats returns cache performance statistics.
func (c *TileCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}
