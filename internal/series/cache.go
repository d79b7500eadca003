package series

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes country analyses and regular labels. Entries stay valid for the record
// collection they were computed from until Invalidate is called.
type Cache struct {
	current atomic.Pointer[cacheSnapshot]
	flight  singleflight.Group

	generation atomic.Uint64
	hits       atomic.Uint64
	misses     atomic.Uint64
}

type cacheSnapshot struct {
	generation uint64

	mu       sync.RWMutex
	analyses map[string]CountryAnalysis
	labels   map[string]string
}

// CacheStats reports cache counters for diagnostics.
type CacheStats struct {
	Generation uint64
	Countries  int
	Labels     int
	Hits       uint64
	Misses     uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(newCacheSnapshot(0))
	return c
}

func newCacheSnapshot(generation uint64) *cacheSnapshot {
	return &cacheSnapshot{
		generation: generation,
		analyses:   make(map[string]CountryAnalysis),
		labels:     make(map[string]string),
	}
}

// View is the cache generation that was current when it was taken. Entries computed through a
// view are stored in that generation only, so work started before an Invalidate never reaches
// the generation that replaced it.
type View struct {
	cache *Cache
	snap  *cacheSnapshot
}

// View pins the current generation.
func (c *Cache) View() View {
	return View{cache: c, snap: c.current.Load()}
}

// Generation reports the generation the view is pinned to.
func (v View) Generation() uint64 {
	return v.snap.generation
}

// Analysis returns the cached analysis for country in the current generation.
func (c *Cache) Analysis(country string, compute func() CountryAnalysis) CountryAnalysis {
	return c.View().Analysis(country, compute)
}

// Label returns the cached label for code in the current generation.
func (c *Cache) Label(code string, compute func() string) string {
	return c.View().Label(code, compute)
}

// Analysis returns the analysis for country, computing it once per generation.
func (v View) Analysis(country string, compute func() CountryAnalysis) CountryAnalysis {
	snap := v.snap

	snap.mu.RLock()
	analysis, ok := snap.analyses[country]
	snap.mu.RUnlock()
	if ok {
		v.cache.hits.Add(1)
		return analysis
	}
	v.cache.misses.Add(1)

	key := strconv.FormatUint(snap.generation, 10) + "/" + country
	value, _, _ := v.cache.flight.Do(key, func() (any, error) {
		snap.mu.RLock()
		cached, ok := snap.analyses[country]
		snap.mu.RUnlock()
		if ok {
			return cached, nil
		}
		computed := compute()
		snap.mu.Lock()
		snap.analyses[country] = computed
		snap.mu.Unlock()
		return computed, nil
	})
	return value.(CountryAnalysis)
}

// Label returns the label for code, computing it on a miss.
func (v View) Label(code string, compute func() string) string {
	snap := v.snap

	snap.mu.RLock()
	label, ok := snap.labels[code]
	snap.mu.RUnlock()
	if ok {
		v.cache.hits.Add(1)
		return label
	}
	v.cache.misses.Add(1)

	label = compute()
	snap.mu.Lock()
	snap.labels[code] = label
	snap.mu.Unlock()
	return label
}

// Invalidate discards every entry by swapping in an empty snapshot.
func (c *Cache) Invalidate() uint64 {
	next := c.generation.Add(1)
	c.current.Store(newCacheSnapshot(next))
	return next
}

// Stats reports the counters and the size of the current generation.
func (c *Cache) Stats() CacheStats {
	snap := c.current.Load()
	snap.mu.RLock()
	defer snap.mu.RUnlock()
	return CacheStats{
		Generation: snap.generation,
		Countries:  len(snap.analyses),
		Labels:     len(snap.labels),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
}
