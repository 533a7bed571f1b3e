// Package enrich implements the listening-event enrichment engine: a
// canonical-track cache, a pending queue with batched flushing, and the
// orchestration of real-time enrichment and session reconciliation.
package enrich

import (
	"strings"
	"sync"

	"github.com/soundtrail/soundtrail/internal/catalog"
)

// cacheKeyDelimiter separates title from artist in normalized keys. The
// unit separator cannot appear in either field.
const cacheKeyDelimiter = "\x1f"

// CacheKey normalizes a raw title/artist pair into a cache key:
// lowercased, trimmed, joined with a fixed delimiter.
func CacheKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + cacheKeyDelimiter + strings.ToLower(strings.TrimSpace(artist))
}

// Cache stores canonical tracks for lookup by normalized title/artist
// pair and by canonical id. Implementations must be safe for concurrent
// use and must never call the network.
type Cache interface {
	// Get returns the canonical track for a raw title/artist pair.
	Get(title, artist string) (catalog.Track, bool)

	// GetByID returns the canonical track with the given provider id.
	GetByID(id string) (catalog.Track, bool)

	// Put stores a track under the normalized key of the raw pair that
	// resolved to it, under the track's own canonical spelling, and
	// under its id, overwriting unconditionally. Keying by the queried
	// pair is what makes repeat lookups of the same raw strings hit the
	// cache even when the canonical spelling differs.
	Put(title, artist string, track catalog.Track)
}

// MemoryCache is an in-memory Cache. Entries live for the process
// lifetime; there is no eviction.
type MemoryCache struct {
	mu    sync.RWMutex
	byKey map[string]catalog.Track
	byID  map[string]catalog.Track
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		byKey: make(map[string]catalog.Track),
		byID:  make(map[string]catalog.Track),
	}
}

// Get returns the track cached under the normalized title/artist key.
func (c *MemoryCache) Get(title, artist string) (catalog.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	track, ok := c.byKey[CacheKey(title, artist)]
	return track, ok
}

// GetByID returns the track cached under the canonical id.
func (c *MemoryCache) GetByID(id string) (catalog.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	track, ok := c.byID[id]
	return track, ok
}

// Put stores the track, last writer wins.
func (c *MemoryCache) Put(title, artist string, track catalog.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[CacheKey(title, artist)] = track
	c.byKey[CacheKey(track.Name, track.Artist)] = track
	c.byID[track.ID] = track
}
