package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// ============================================================================
// Scheduled
// ============================================================================

// Scheduled clears its delegate when the flush interval has elapsed. The check
// runs on access; no background goroutine is started.
type Scheduled struct {
	delegate  core.Cache
	interval  time.Duration
	lastClear time.Time
	now       func() time.Time
}

// NewScheduled wraps delegate with interval flushing.
func NewScheduled(delegate core.Cache, interval time.Duration) *Scheduled {
	return newScheduledWithClock(delegate, interval, time.Now)
}

func newScheduledWithClock(delegate core.Cache, interval time.Duration, now func() time.Time) *Scheduled {
	return &Scheduled{delegate: delegate, interval: interval, lastClear: now(), now: now}
}

func (c *Scheduled) clearWhenStale() (bool, error) {
	if c.now().Sub(c.lastClear) < c.interval {
		return false, nil
	}
	return true, c.Clear()
}

// ID implements core.Cache.
func (c *Scheduled) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *Scheduled) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *Scheduled) Put(key core.CacheKey, value any) error {
	if _, err := c.clearWhenStale(); err != nil {
		return err
	}
	return c.delegate.Put(key, value)
}

// Get implements core.Cache.
func (c *Scheduled) Get(key core.CacheKey) (any, bool, error) {
	cleared, err := c.clearWhenStale()
	if err != nil || cleared {
		return nil, false, err
	}
	return c.delegate.Get(key)
}

// Remove implements core.Cache.
func (c *Scheduled) Remove(key core.CacheKey) error {
	if _, err := c.clearWhenStale(); err != nil {
		return err
	}
	return c.delegate.Remove(key)
}

// Clear implements core.Cache.
func (c *Scheduled) Clear() error {
	c.lastClear = c.now()
	return c.delegate.Clear()
}

// Size implements core.Cache.
func (c *Scheduled) Size() int {
	_, _ = c.clearWhenStale()
	return c.delegate.Size()
}

// ============================================================================
// Serialized
// ============================================================================

// Serialized stores deep copies and hands out deep copies, so callers never
// share mutable state through the cache.
type Serialized struct {
	delegate core.Cache
}

// NewSerialized wraps delegate with copy-on-put and copy-on-get.
func NewSerialized(delegate core.Cache) *Serialized {
	return &Serialized{delegate: delegate}
}

// ID implements core.Cache.
func (c *Serialized) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *Serialized) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *Serialized) Put(key core.CacheKey, value any) error {
	cp, err := copystructure.Copy(value)
	if err != nil {
		return fmt.Errorf("cache %s: copy value for %s: %w", c.ID(), key, err)
	}
	return c.delegate.Put(key, cp)
}

// Get implements core.Cache.
func (c *Serialized) Get(key core.CacheKey) (any, bool, error) {
	v, ok, err := c.delegate.Get(key)
	if err != nil || !ok {
		return v, ok, err
	}
	cp, err := copystructure.Copy(v)
	if err != nil {
		return nil, false, fmt.Errorf("cache %s: copy value for %s: %w", c.ID(), key, err)
	}
	return cp, true, nil
}

// Remove implements core.Cache.
func (c *Serialized) Remove(key core.CacheKey) error { return c.delegate.Remove(key) }

// Clear implements core.Cache.
func (c *Serialized) Clear() error { return c.delegate.Clear() }

// Size implements core.Cache.
func (c *Serialized) Size() int { return c.delegate.Size() }

// ============================================================================
// Logging
// ============================================================================

// Logging counts requests and hits and logs the hit ratio at debug level.
type Logging struct {
	delegate core.Cache
	logger   *slog.Logger
	requests atomic.Int64
	hits     atomic.Int64
}

// NewLogging wraps delegate with hit ratio logging. A nil logger discards.
func NewLogging(delegate core.Cache, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logging{delegate: delegate, logger: logger}
}

// ID implements core.Cache.
func (c *Logging) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *Logging) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *Logging) Put(key core.CacheKey, value any) error { return c.delegate.Put(key, value) }

// Get implements core.Cache.
func (c *Logging) Get(key core.CacheKey) (any, bool, error) {
	c.requests.Add(1)
	v, ok, err := c.delegate.Get(key)
	if ok {
		c.hits.Add(1)
	}
	c.logger.Debug("cache lookup", "id", c.ID(), "hit", ok, "hit_ratio", c.HitRatio())
	return v, ok, err
}

// HitRatio returns hits divided by requests, zero before the first request.
func (c *Logging) HitRatio() float64 {
	requests := c.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(requests)
}

// Remove implements core.Cache.
func (c *Logging) Remove(key core.CacheKey) error { return c.delegate.Remove(key) }

// Clear implements core.Cache.
func (c *Logging) Clear() error { return c.delegate.Clear() }

// Size implements core.Cache.
func (c *Logging) Size() int { return c.delegate.Size() }

// ============================================================================
// Synchronized
// ============================================================================

// Synchronized serializes every call to its delegate.
type Synchronized struct {
	mu       sync.Mutex
	delegate core.Cache
}

// NewSynchronized wraps delegate with a mutex.
func NewSynchronized(delegate core.Cache) *Synchronized {
	return &Synchronized{delegate: delegate}
}

// ID implements core.Cache.
func (c *Synchronized) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *Synchronized) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *Synchronized) Put(key core.CacheKey, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Put(key, value)
}

// Get implements core.Cache.
func (c *Synchronized) Get(key core.CacheKey) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(key)
}

// Remove implements core.Cache.
func (c *Synchronized) Remove(key core.CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(key)
}

// Clear implements core.Cache.
func (c *Synchronized) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Clear()
}

// Size implements core.Cache.
func (c *Synchronized) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}
