package cache

import (
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// DefaultSize bounds eviction decorators when no size is configured.
const DefaultSize = 1024

// lruNode is a key in the recency list.
type lruNode struct {
	key  core.CacheKey
	prev *lruNode
	next *lruNode
}

// LRU evicts the least recently used key once more than size keys are stored.
// Recency is tracked with a doubly linked list between dummy head and tail nodes.
type LRU struct {
	delegate core.Cache
	size     int
	nodes    map[core.CacheKey]*lruNode
	head     *lruNode // most recently used end
	tail     *lruNode // least recently used end
}

// NewLRU wraps delegate with LRU eviction. A size <= 0 uses DefaultSize.
func NewLRU(delegate core.Cache, size int) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	c := &LRU{delegate: delegate, size: size}
	c.reset()
	return c
}

func (c *LRU) reset() {
	c.nodes = make(map[core.CacheKey]*lruNode)
	c.head = &lruNode{}
	c.tail = &lruNode{}
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *LRU) addToFront(n *lruNode) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU) unlink(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// ID implements core.Cache.
func (c *LRU) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *LRU) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *LRU) Put(key core.CacheKey, value any) error {
	if err := c.delegate.Put(key, value); err != nil {
		return err
	}
	if n, ok := c.nodes[key]; ok {
		c.unlink(n)
		c.addToFront(n)
		return nil
	}
	n := &lruNode{key: key}
	c.nodes[key] = n
	c.addToFront(n)
	if len(c.nodes) > c.size {
		eldest := c.tail.prev
		c.unlink(eldest)
		delete(c.nodes, eldest.key)
		return c.delegate.Remove(eldest.key)
	}
	return nil
}

// Get implements core.Cache.
func (c *LRU) Get(key core.CacheKey) (any, bool, error) {
	if n, ok := c.nodes[key]; ok {
		c.unlink(n)
		c.addToFront(n)
	}
	return c.delegate.Get(key)
}

// Remove implements core.Cache.
func (c *LRU) Remove(key core.CacheKey) error {
	if n, ok := c.nodes[key]; ok {
		c.unlink(n)
		delete(c.nodes, key)
	}
	return c.delegate.Remove(key)
}

// Clear implements core.Cache.
func (c *LRU) Clear() error {
	c.reset()
	return c.delegate.Clear()
}

// Size implements core.Cache.
func (c *LRU) Size() int { return c.delegate.Size() }

// FIFO evicts the oldest inserted key once more than size keys are stored.
type FIFO struct {
	delegate core.Cache
	size     int
	order    []core.CacheKey
	present  map[core.CacheKey]struct{}
}

// NewFIFO wraps delegate with first-in first-out eviction. A size <= 0 uses DefaultSize.
func NewFIFO(delegate core.Cache, size int) *FIFO {
	if size <= 0 {
		size = DefaultSize
	}
	return &FIFO{delegate: delegate, size: size, present: make(map[core.CacheKey]struct{})}
}

// ID implements core.Cache.
func (c *FIFO) ID() string { return c.delegate.ID() }

// Delegate implements Delegating.
func (c *FIFO) Delegate() core.Cache { return c.delegate }

// Put implements core.Cache.
func (c *FIFO) Put(key core.CacheKey, value any) error {
	if _, ok := c.present[key]; !ok {
		c.order = append(c.order, key)
		c.present[key] = struct{}{}
		if len(c.order) > c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.present, oldest)
			if err := c.delegate.Remove(oldest); err != nil {
				return err
			}
		}
	}
	return c.delegate.Put(key, value)
}

// Get implements core.Cache.
func (c *FIFO) Get(key core.CacheKey) (any, bool, error) { return c.delegate.Get(key) }

// Remove implements core.Cache.
func (c *FIFO) Remove(key core.CacheKey) error { return c.delegate.Remove(key) }

// Clear implements core.Cache.
func (c *FIFO) Clear() error {
	c.order = nil
	clear(c.present)
	return c.delegate.Clear()
}

// Size implements core.Cache.
func (c *FIFO) Size() int { return c.delegate.Size() }
