package cache

import (
	"sync"
	"time"
)

// noNode terminates the intrusive list.
const noNode = -1

// lruNode is one slot in the array-backed ordering arena. prev and next
// are indices into LRU.nodes, so the recency list carries no pointers.
type lruNode[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	lastAccess time.Time
	size       int64
	prev, next int
}

// LRU is a fixed-capacity cache with least-recently-used eviction.
//
// The cache never holds more than capacity entries; inserting beyond
// capacity evicts exactly the entry with the oldest access first.
// Eviction is normal behavior, never an error. A Put for an existing
// key replaces the entry wholesale.
//
// Recency is tracked with a hash map from key to an integer handle into
// a node arena whose prev/next links are themselves arena indices;
// freed handles are recycled through a free list. Get, Put and eviction
// are all O(1).
//
// All methods are safe for concurrent use. A single mutex guards the
// map, the ordering list and the statistics counters, so counters are
// exact and a Get together with its recency touch is atomic.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int

	index map[K]int
	nodes []lruNode[K, V]
	free  []int
	head  int // most recently used
	tail  int // least recently used

	now    func() time.Time
	sizeOf func(key K, value V) int64

	sizeEstimate            int64
	hits, misses, evictions uint64
}

// LRUOption configures an LRU.
type LRUOption[K comparable, V any] func(*LRU[K, V])

// WithSizeFunc installs a per-entry size estimator. The estimate is
// surfaced through Stats for reporting only.
func WithSizeFunc[K comparable, V any](sizeOf func(key K, value V) int64) LRUOption[K, V] {
	return func(c *LRU[K, V]) {
		c.sizeOf = sizeOf
	}
}

// WithLRUClock overrides the time source used for entry timestamps.
// Intended for tests.
func WithLRUClock[K comparable, V any](now func() time.Time) LRUOption[K, V] {
	return func(c *LRU[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLRU creates an LRU bounded to capacity entries.
func NewLRU[K comparable, V any](capacity int, opts ...LRUOption[K, V]) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	c := &LRU[K, V]{
		capacity: capacity,
		index:    make(map[K]int, capacity),
		nodes:    make([]lruNode[K, V], 0, capacity),
		head:     noNode,
		tail:     noNode,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get returns the cached value for key and marks the entry as most
// recently used. A miss has no side effect beyond the miss counter.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.index[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	c.nodes[h].lastAccess = c.now()
	c.moveToFront(h)

	return c.nodes[h].value, true
}

// Put inserts or replaces the entry for key as most recently used.
// If the insertion would exceed capacity, the least-recently-used entry
// is evicted first.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	size := c.entrySize(key, value)

	if h, ok := c.index[key]; ok {
		// Replace wholesale; entries are never mutated in place.
		n := &c.nodes[h]
		c.sizeEstimate += size - n.size
		n.key = key
		n.value = value
		n.insertedAt = now
		n.lastAccess = now
		n.size = size
		c.moveToFront(h)
		return
	}

	if len(c.index) >= c.capacity {
		c.evictTail()
	}

	h := c.alloc()
	c.nodes[h] = lruNode[K, V]{
		key:        key,
		value:      value,
		insertedAt: now,
		lastAccess: now,
		size:       size,
		prev:       noNode,
		next:       noNode,
	}
	c.pushFront(h)
	c.index[key] = h
	c.sizeEstimate += size
}

// Remove deletes the entry for key if present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.index[key]
	if !ok {
		return false
	}
	c.removeNode(h)
	return true
}

// Clear removes all entries and resets the ordering. Statistics
// counters are untouched; use ResetStats for those.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[K]int, c.capacity)
	c.nodes = c.nodes[:0]
	c.free = c.free[:0]
	c.head = noNode
	c.tail = noNode
	c.sizeEstimate = 0
}

// ResetStats zeroes the hit/miss/eviction counters.
func (c *LRU[K, V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		Entries:      len(c.index),
		SizeEstimate: c.sizeEstimate,
	}
}

// CleanupExpired exists for interface symmetry with ScopedTTL. An LRU
// has no time-based expiry, so it always returns 0.
func (c *LRU[K, V]) CleanupExpired() int {
	return 0
}

// Len returns the current number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Cap returns the configured capacity.
func (c *LRU[K, V]) Cap() int {
	return c.capacity
}

func (c *LRU[K, V]) entrySize(key K, value V) int64 {
	if c.sizeOf == nil {
		return 0
	}
	return c.sizeOf(key, value)
}

// alloc returns a free node handle, recycling released slots first.
func (c *LRU[K, V]) alloc() int {
	if n := len(c.free); n > 0 {
		h := c.free[n-1]
		c.free = c.free[:n-1]
		return h
	}
	c.nodes = append(c.nodes, lruNode[K, V]{prev: noNode, next: noNode})
	return len(c.nodes) - 1
}

func (c *LRU[K, V]) pushFront(h int) {
	c.nodes[h].prev = noNode
	c.nodes[h].next = c.head
	if c.head != noNode {
		c.nodes[c.head].prev = h
	}
	c.head = h
	if c.tail == noNode {
		c.tail = h
	}
}

func (c *LRU[K, V]) unlink(h int) {
	n := &c.nodes[h]
	if n.prev != noNode {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != noNode {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = noNode
	n.next = noNode
}

func (c *LRU[K, V]) moveToFront(h int) {
	if c.head == h {
		return
	}
	c.unlink(h)
	c.pushFront(h)
}

// evictTail removes the least-recently-used entry. Entries touched at
// the same timestamp evict in insertion order because both Put and Get
// move to the front, leaving older entries behind.
func (c *LRU[K, V]) evictTail() {
	if c.tail == noNode {
		return
	}
	c.removeNode(c.tail)
	c.evictions++
}

func (c *LRU[K, V]) removeNode(h int) {
	c.unlink(h)
	n := &c.nodes[h]
	delete(c.index, n.key)
	c.sizeEstimate -= n.size

	// Zero the slot so the arena does not pin the evicted key/value.
	*n = lruNode[K, V]{prev: noNode, next: noNode}
	c.free = append(c.free, h)
}
