package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
)

// CacheObserver is told whether each lookup was a hit or a miss.
type CacheObserver func(result string)

// CachedSource wraps a Source with an in-memory LRU keyed by query.
// Rasters are immutable, so cached slices are shared across callers.
type CachedSource struct {
	inner    Source
	cache    *lruCache[[]domain.Raster]
	observer CacheObserver
}

// NewCachedSource creates a cache decorator around a scene source.
// observer may be nil.
func NewCachedSource(inner Source, maxEntries int, observer CacheObserver) *CachedSource {
	if observer == nil {
		observer = func(string) {}
	}
	return &CachedSource{
		inner:    inner,
		cache:    newLRUCache[[]domain.Raster](maxEntries),
		observer: observer,
	}
}

func (c *CachedSource) Scenes(ctx context.Context, datasetID string, start, end time.Time, bound orb.Bound) ([]domain.Raster, error) {
	key := fmt.Sprintf("%s|%s|%s|%.6f,%.6f,%.6f,%.6f", datasetID,
		start.Format(time.DateOnly), end.Format(time.DateOnly),
		bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
	if scenes, ok := c.cache.get(key); ok {
		c.observer("hit")
		return scenes, nil
	}
	c.observer("miss")

	scenes, err := c.inner.Scenes(ctx, datasetID, start, end, bound)
	if err != nil {
		return nil, err
	}
	// Empty windows are not cached so late-arriving scenes are picked up.
	if len(scenes) > 0 {
		c.cache.put(key, scenes)
	}
	return scenes, nil
}

// lruCache is a thread-safe least-recently-used map.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*lruEntry[V]
	head       *lruEntry[V] // most recently used
	tail       *lruEntry[V] // least recently used
}

type lruEntry[V any] struct {
	key   string
	value V
	prev  *lruEntry[V]
	next  *lruEntry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*lruEntry[V]),
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.promote(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.promote(e)
		return
	}

	e := &lruEntry[V]{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

func (c *lruCache[V]) promote(e *lruEntry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache[V]) pushFront(e *lruEntry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *lruEntry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictOldest() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
