// Package cache holds lazily materialized, explicitly invalidated caches of
// configuration artifacts.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cleanable is a cache that can be invalidated by key or entirely.
//
// Both operations are synchronous, never fail and are no-ops for unknown keys.
// Once either returns, no new lookup observes the dropped value.
type Cleanable interface {
	Invalidate(key string)
	InvalidateAll()
}

// Loader materializes the value for key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

type Option[V any] func(*Cache[V])

// WithOnEvict registers a hook called for every value dropped by invalidation.
// It runs on the invalidating goroutine after the cache lock is released.
func WithOnEvict[V any](fn func(key string, v V)) Option[V] {
	return func(c *Cache[V]) { c.onEvict = fn }
}

// Cache is a concurrency-safe map of materialized values.
//
// Loads carry the generation they started under. Invalidate bumps the key's
// generation and InvalidateAll bumps the epoch, so a load that overlaps an
// invalidation is dropped and retried rather than stored or handed out.
type Cache[V any] struct {
	name    string
	load    Loader[V]
	onEvict func(string, V)

	mu      sync.RWMutex
	entries map[string]V
	// gens and loading are only populated while a load for the key is outstanding.
	gens    map[string]uint64
	loading map[string]int
	seq     uint64
	epoch   uint64

	group singleflight.Group
}

// errStale marks a load that an invalidation overtook.
var errStale = errors.New("cache: load invalidated")

func New[V any](name string, load Loader[V], opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    name,
		load:    load,
		entries: map[string]V{},
		gens:    map[string]uint64{},
		loading: map[string]int{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache[V]) Name() string { return c.name }

// Get returns the cached value for key, loading it on a miss.
// Concurrent misses for the same key share one load.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	for {
		c.mu.RLock()
		v, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := c.loadOnce(ctx, key)
		if !errors.Is(err, errStale) {
			return v, err
		}
		if err := ctx.Err(); err != nil {
			var zero V
			return zero, err
		}
	}
}

func (c *Cache[V]) loadOnce(ctx context.Context, key string) (V, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	epoch, gen := c.epoch, c.gens[key]
	c.loading[key]++
	c.mu.Unlock()
	defer c.doneLoading(key)

	flight := key + "\x00" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	res, err, _ := c.group.Do(flight, func() (any, error) {
		loaded, err := c.load(ctx, key)
		if err != nil {
			return loaded, err
		}
		if !c.store(key, loaded, epoch, gen) {
			if c.onEvict != nil {
				c.onEvict(key, loaded)
			}
			return nil, errStale
		}
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

func (c *Cache[V]) doneLoading(key string) {
	c.mu.Lock()
	if c.loading[key]--; c.loading[key] <= 0 {
		delete(c.loading, key)
		delete(c.gens, key)
	}
	c.mu.Unlock()
}

// Peek returns the cached value without loading.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// store reports false when an invalidation overtook the load.
func (c *Cache[V]) store(key string, v V, epoch, gen uint64) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.gens[key] != gen {
		c.mu.Unlock()
		return false
	}
	old, had := c.entries[key]
	c.entries[key] = v
	c.mu.Unlock()
	if had && c.onEvict != nil {
		c.onEvict(key, old)
	}
	return true
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	old, had := c.entries[key]
	delete(c.entries, key)
	if c.loading[key] > 0 {
		c.seq++
		c.gens[key] = c.seq
	}
	c.mu.Unlock()

	if had && c.onEvict != nil {
		c.onEvict(key, old)
	}
}

// generations reports how many keys carry a generation; exposed for tests.
func (c *Cache[V]) generations() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.gens)
}

func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	old := c.entries
	c.entries = map[string]V{}
	c.gens = map[string]uint64{}
	c.epoch++
	c.mu.Unlock()

	if c.onEvict != nil {
		for k, v := range old {
			c.onEvict(k, v)
		}
	}
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Nop is a Cleanable for subsystems that do not cache.
type Nop struct{}

func (Nop) Invalidate(string) {}
func (Nop) InvalidateAll()    {}

var (
	_ Cleanable = (*Cache[int])(nil)
	_ Cleanable = Nop{}
)
