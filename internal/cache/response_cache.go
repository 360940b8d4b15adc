package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robjohncolson/statrelay/pkg/metrics"
)

// DefaultTTL bounds staleness for aggregate peer-data reads.
const DefaultTTL = 30 * time.Second

const janitorInterval = time.Minute

// ComputeFunc produces the value for a cache key on a miss.
type ComputeFunc func(ctx context.Context) (any, error)

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// call tracks an in-flight compute so concurrent misses on the same key share
// one upstream round trip. invalidated is set (under the cache mutex) when the
// key is invalidated while the compute is still running; the result is then
// returned to waiters but never stored, since it may predate the write that
// triggered the invalidation.
type call struct {
	done        chan struct{}
	value       any
	err         error
	invalidated bool
}

// ResponseCache memoises read-heavy aggregate queries for a short TTL with
// explicit invalidation. It is process-local: the relay is a single deployment
// unit, so no cross-instance coherence is needed.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*call
	clock    func() time.Time
	stop     chan struct{}
	stopOnce sync.Once

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option customises a ResponseCache.
type Option func(*ResponseCache)

// WithClock injects a clock for deterministic expiry tests.
func WithClock(clock func() time.Time) Option {
	return func(c *ResponseCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewResponseCache constructs a ResponseCache and starts its janitor.
func NewResponseCache(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries:  make(map[string]*entry),
		inflight: make(map[string]*call),
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.janitorLoop()
	return c
}

// Close stops the janitor goroutine.
func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ResponseCache) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.clock()
			c.mu.Lock()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// GetOrCompute returns the cached value for key when present and unexpired.
// On a miss it invokes compute at most once per concurrent miss burst; other
// callers block on the in-flight result. Compute errors are never cached.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (any, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()

	if e, ok := c.entries[key]; ok && !e.expired(c.clock()) {
		c.mu.Unlock()
		c.hits.Add(1)
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return e.value, nil
	}

	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			if cl.err != nil {
				return nil, cl.err
			}
			c.hits.Add(1)
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return cl.value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	c.misses.Add(1)
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	value, err := compute(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil && !cl.invalidated {
		c.entries[key] = &entry{value: value, insertedAt: c.clock(), ttl: ttl}
	}
	c.mu.Unlock()

	cl.value = value
	cl.err = err
	close(cl.done)

	return value, err
}

// Invalidate removes exact keys immediately.
func (c *ResponseCache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
		if cl, ok := c.inflight[key]; ok {
			cl.invalidated = true
		}
	}
	c.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (c *ResponseCache) InvalidatePrefix(prefix string) {
	if prefix == "" {
		return
	}

	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	for key, cl := range c.inflight {
		if strings.HasPrefix(key, prefix) {
			cl.invalidated = true
		}
	}
	c.mu.Unlock()
}

// Stats reports lifetime hit/miss counts and the number of live entries.
func (c *ResponseCache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	size = len(c.entries)
	c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), size
}

// HitRate returns the fraction of lookups served from cache, or 0 before any lookup.
func (c *ResponseCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
