package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// LockTimeoutError is returned when a key gate could not be acquired in time.
type LockTimeoutError struct {
	Key     core.CacheKey
	CacheID string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("cache: could not get a lock in %s for the key %q at the cache %q", e.Timeout, e.Key, e.CacheID)
}

// Unwrap returns ErrLockTimeout.
func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// Blocking lets a single caller recompute a missing entry while other callers
// of the same key wait.
//
// A Get that misses keeps the key's gate; the caller must follow it with
// exactly one Put (store the value) or Remove (give up). Remove only releases
// the gate and never touches the delegate. Clear does not release gates.
type Blocking struct {
	delegate core.Cache
	timeout  time.Duration
	// gates maps core.CacheKey to chan struct{}; a closed channel is an open gate.
	gates sync.Map
}

// NewBlocking wraps delegate. A timeout <= 0 waits indefinitely.
func NewBlocking(delegate core.Cache, timeout time.Duration) *Blocking {
	return &Blocking{delegate: delegate, timeout: timeout}
}

// ID implements core.Cache.
func (c *Blocking) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *Blocking) Delegate() core.Cache { return c.delegate }

// Timeout returns the acquire timeout.
func (c *Blocking) Timeout() time.Duration { return c.timeout }

// Get acquires the key gate and reads the delegate. The gate is released on a
// hit and kept on a miss.
func (c *Blocking) Get(key core.CacheKey) (any, bool, error) {
	if err := c.acquire(key); err != nil {
		return nil, false, err
	}
	v, ok, err := c.delegate.Get(key)
	if ok {
		c.release(key)
	}
	return v, ok, err
}

// Put writes through and releases the key gate.
func (c *Blocking) Put(key core.CacheKey, value any) error {
	defer c.release(key)
	return c.delegate.Put(key, value)
}

// Remove releases the key gate without touching the delegate.
func (c *Blocking) Remove(key core.CacheKey) error {
	c.release(key)
	return nil
}

// Clear clears the delegate. Outstanding gates stay held.
func (c *Blocking) Clear() error { return c.delegate.Clear() }

// Size implements core.Cache.
func (c *Blocking) Size() int { return c.delegate.Size() }

func (c *Blocking) acquire(key core.CacheKey) error {
	gate := make(chan struct{})
	for {
		existing, loaded := c.gates.LoadOrStore(key, gate)
		if !loaded {
			return nil
		}
		held := existing.(chan struct{})
		if c.timeout <= 0 {
			<-held
			continue
		}
		timer := time.NewTimer(c.timeout)
		select {
		case <-held:
			timer.Stop()
		case <-timer.C:
			return &LockTimeoutError{Key: key, CacheID: c.ID(), Timeout: c.timeout}
		}
	}
}

func (c *Blocking) release(key core.CacheKey) {
	v, ok := c.gates.LoadAndDelete(key)
	if !ok {
		panic(fmt.Sprintf("cache: release of key %q at the cache %q without a held lock", key, c.ID()))
	}
	close(v.(chan struct{}))
}
