// Package cache holds completed frost-risk assessments keyed by
// station-day and crop. Concurrent requests for the same key share a single
// in-flight computation.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/frostbyte/frostrisk/internal/frost"
	"github.com/frostbyte/frostrisk/internal/metrics"
)

// DefaultCurrentDayTTL bounds how stale a current-day assessment may be.
// Past days are immutable once closed out, so those entries never expire.
const DefaultCurrentDayTTL = 10 * time.Minute

// computeTimeout bounds a detached computation so waiters are never stuck
// behind a hung upstream fetch.
const computeTimeout = 3 * time.Minute

// Key identifies one assessment. Date is an ISO calendar date (2006-01-02)
// in the station's local zone; crop and variety are lowercase.
type Key struct {
	StationID string
	Date      string
	Crop      string
	Variety   string
}

// ComputeFunc produces the assessment for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (*frost.Assessment, error)

type entry struct {
	done    chan struct{}
	val     *frost.Assessment
	err     error
	expires time.Time // zero means never
}

// Cache is a concurrency-safe single-flight assessment cache.
type Cache struct {
	clock clockwork.Clock
	loc   *time.Location
	ttl   time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
}

// New builds a cache with the given current-day TTL. Keys carry local
// calendar dates, so loc must be the processing timezone the rest of the
// service decides "today" in.
func New(clock clockwork.Clock, loc *time.Location, currentDayTTL time.Duration) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	if currentDayTTL <= 0 {
		currentDayTTL = DefaultCurrentDayTTL
	}
	return &Cache{
		clock:   clock,
		loc:     loc,
		ttl:     currentDayTTL,
		entries: make(map[Key]*entry),
	}
}

// GetOrCompute returns the cached assessment for key, or runs fn exactly once
// while any number of callers wait on the result. The computation runs on a
// context detached from the caller's cancellation: one caller giving up must
// not abort a result other callers are waiting for. Failed computations are
// not cached; the next request retries.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, fn ComputeFunc) (*frost.Assessment, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e) {
		delete(c.entries, key)
		ok = false
	}
	if ok {
		c.mu.Unlock()
		metrics.CacheHitsTotal.Inc()
		return c.wait(ctx, e)
	}

	e = &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()
	metrics.CacheMissesTotal.Inc()

	go func() {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		c.compute(computeCtx, key, e, fn)
	}()
	return c.wait(ctx, e)
}

// Get returns a completed cached assessment without computing. It does not
// join in-flight computations.
func (c *Cache) Get(key Key) (*frost.Assessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}
	select {
	case <-e.done:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.val, true
}

// Invalidate drops the entry for key, if any.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) compute(ctx context.Context, key Key, e *entry, fn ComputeFunc) {
	val, err := fn(ctx)

	c.mu.Lock()
	e.val, e.err = val, err
	if err != nil {
		delete(c.entries, key)
	} else if key.Date >= c.clock.Now().In(c.loc).Format("2006-01-02") {
		// The local day is still accumulating observations upstream.
		e.expires = c.clock.Now().Add(c.ttl)
	}
	c.mu.Unlock()

	close(e.done)
}

func (c *Cache) wait(ctx context.Context, e *entry) (*frost.Assessment, error) {
	select {
	case <-e.done:
		return e.val, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) expired(e *entry) bool {
	select {
	case <-e.done:
	default:
		// Still computing; never treat as expired.
		return false
	}
	return !e.expires.IsZero() && c.clock.Now().After(e.expires)
}
