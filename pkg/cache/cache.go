// Package cache provides the runtime caches attached to mapper namespaces.
//
// A namespace cache is a base store (Perpetual, or a registered implementation
// such as sqlcache) wrapped by decorators in a fixed order:
//
//	base -> eviction (LRU/FIFO) -> Scheduled -> Serialized -> Logging -> Synchronized -> Blocking
//
// Only Synchronized and Blocking are safe for concurrent use. Builder assembles
// the chain from a core.CacheConfig.
package cache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrNoID is returned when a cache is built without an identifier.
	ErrNoID = errors.New("cache: cache id is required")
	// ErrLockTimeout is wrapped by LockTimeoutError.
	ErrLockTimeout = errors.New("cache: could not acquire lock")
)

// Delegating is implemented by decorators to expose the wrapped cache.
type Delegating interface {
	Delegate() core.Cache
}

// Unwrap returns the innermost cache of a decorator chain.
func Unwrap(c core.Cache) core.Cache {
	for {
		d, ok := c.(Delegating)
		if !ok {
			return c
		}
		c = d.Delegate()
	}
}

// NewKey builds a cache key from its parts. Parts are rendered with %v and
// joined, so callers must pass parts in a stable order.
func NewKey(parts ...any) core.CacheKey {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%v", p)
	}
	return core.CacheKey(b.String())
}

// Hash returns the 64-bit hash of a key.
func Hash(k core.CacheKey) uint64 {
	return xxh3.HashString(string(k))
}

// Perpetual is an unbounded map store. It is not safe for concurrent use.
type Perpetual struct {
	id    string
	items map[core.CacheKey]any
}

// NewPerpetual creates an empty Perpetual cache.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, items: make(map[core.CacheKey]any)}
}

// ID implements core.Cache.
func (c *Perpetual) ID() string { return c.id }

// Put implements core.Cache.
func (c *Perpetual) Put(key core.CacheKey, value any) error {
	c.items[key] = value
	return nil
}

// Get implements core.Cache.
func (c *Perpetual) Get(key core.CacheKey) (any, bool, error) {
	v, ok := c.items[key]
	return v, ok, nil
}

// Remove implements core.Cache.
func (c *Perpetual) Remove(key core.CacheKey) error {
	delete(c.items, key)
	return nil
}

// Clear implements core.Cache.
func (c *Perpetual) Clear() error {
	clear(c.items)
	return nil
}

// Size implements core.Cache.
func (c *Perpetual) Size() int { return len(c.items) }
