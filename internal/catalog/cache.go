package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sells-group/ratemap/internal/fips"
)

// Cache memoizes Catalog reads per (level, key, year) partition. Boundary
// geometry is immutable once imported, so the cache is read-mostly and
// eviction-free: entries live as long as the cache does. Callers choose the
// lifetime by where they hold the handle (one render call, or process-wide).
//
// Concurrent renders sharing a Cache get at-most-one load per key: a loading
// key parks later callers on a per-key gate instead of issuing a second read.
type Cache struct {
	inner Catalog

	mu       sync.Mutex
	sets     map[string][]Boundary
	singles  map[string]*Boundary
	inflight map[string]chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache wraps a Catalog with partition memoization.
func NewCache(inner Catalog) *Cache {
	return &Cache{
		inner:    inner,
		sets:     make(map[string][]Boundary),
		singles:  make(map[string]*Boundary),
		inflight: make(map[string]chan struct{}),
	}
}

// Stats reports hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cacheKey(lvl fips.Level, key string, year int) string {
	return fmt.Sprintf("%s/%s/%d", lvl, key, year)
}

// acquire returns true when the caller owns the load for key and must call
// release afterwards. When false, a concurrent load finished and the caller
// should re-check the memo maps.
func (c *Cache) acquire(ctx context.Context, key string) (bool, error) {
	for {
		c.mu.Lock()
		gate, loading := c.inflight[key]
		if !loading {
			c.inflight[key] = make(chan struct{})
			c.mu.Unlock()
			return true, nil
		}
		c.mu.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}

		c.mu.Lock()
		_, stillLoading := c.inflight[key]
		c.mu.Unlock()
		if !stillLoading {
			return false, nil
		}
	}
}

func (c *Cache) release(key string) {
	c.mu.Lock()
	gate := c.inflight[key]
	delete(c.inflight, key)
	c.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (c *Cache) getSet(ctx context.Context, key string, load func() ([]Boundary, error)) ([]Boundary, error) {
	for {
		c.mu.Lock()
		if set, ok := c.sets[key]; ok {
			c.mu.Unlock()
			c.hits.Add(1)
			return set, nil
		}
		c.mu.Unlock()

		owner, err := c.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if !owner {
			continue
		}

		c.misses.Add(1)
		set, err := load()
		if err != nil {
			// Failed loads are not memoized; the next caller retries.
			c.release(key)
			return nil, err
		}

		c.mu.Lock()
		c.sets[key] = set
		c.mu.Unlock()
		c.release(key)
		return set, nil
	}
}

func (c *Cache) getSingle(ctx context.Context, key string, load func() (*Boundary, error)) (*Boundary, error) {
	for {
		c.mu.Lock()
		if b, ok := c.singles[key]; ok {
			c.mu.Unlock()
			c.hits.Add(1)
			return b, nil
		}
		c.mu.Unlock()

		owner, err := c.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if !owner {
			continue
		}

		c.misses.Add(1)
		b, err := load()
		if err != nil {
			c.release(key)
			return nil, err
		}

		c.mu.Lock()
		c.singles[key] = b
		c.mu.Unlock()
		c.release(key)
		return b, nil
	}
}

// StateBoundary implements Catalog.
func (c *Cache) StateBoundary(ctx context.Context, stateFIPS string) (*Boundary, error) {
	return c.getSingle(ctx, cacheKey(fips.LevelState, stateFIPS, 2000), func() (*Boundary, error) {
		return c.inner.StateBoundary(ctx, stateFIPS)
	})
}

// RegistryBoundary implements Catalog.
func (c *Cache) RegistryBoundary(ctx context.Context, abbr string) (*Boundary, error) {
	return c.getSingle(ctx, cacheKey(fips.LevelRegistry, abbr, 2000), func() (*Boundary, error) {
		return c.inner.RegistryBoundary(ctx, abbr)
	})
}

// CountyBoundaries implements Catalog.
func (c *Cache) CountyBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	eff := EffectiveYear(fips.LevelCounty, stateFIPS, year)
	return c.getSet(ctx, cacheKey(fips.LevelCounty, stateFIPS, eff), func() ([]Boundary, error) {
		return c.inner.CountyBoundaries(ctx, stateFIPS, year)
	})
}

// TractBoundaries implements Catalog.
func (c *Cache) TractBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	eff := EffectiveYear(fips.LevelTract, stateFIPS, year)
	return c.getSet(ctx, cacheKey(fips.LevelTract, stateFIPS, eff), func() ([]Boundary, error) {
		return c.inner.TractBoundaries(ctx, stateFIPS, year)
	})
}

// HSABoundaries implements Catalog.
func (c *Cache) HSABoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	eff := EffectiveYear(fips.LevelHSA, stateFIPS, year)
	return c.getSet(ctx, cacheKey(fips.LevelHSA, stateFIPS, eff), func() ([]Boundary, error) {
		return c.inner.HSABoundaries(ctx, stateFIPS, year)
	})
}

// RegionExists implements Catalog; existence checks pass through uncached,
// they are metadata reads.
func (c *Cache) RegionExists(ctx context.Context, lvl fips.Level, key string, year int) (bool, error) {
	return c.inner.RegionExists(ctx, lvl, key, year)
}

// ParentOf implements Catalog.
func (c *Cache) ParentOf(ctx context.Context, lvl fips.Level, key string) (string, error) {
	return c.inner.ParentOf(ctx, lvl, key)
}

// ChildrenOf implements Catalog.
func (c *Cache) ChildrenOf(ctx context.Context, lvl fips.Level, key string, year int) ([]string, error) {
	return c.inner.ChildrenOf(ctx, lvl, key, year)
}
