package cache

import (
	"strconv"
	"sync"
	"time"
)

// DefaultTTL bounds result staleness when no explicit TTL is given.
// It is a safety net; InvalidateScope is the precise mechanism.
const DefaultTTL = 5 * time.Minute

// Key builds the composite cache key for (query, limit, scope). The
// query is length-prefixed, so no query text can collide with a
// different limit or scope: the prefix pins the query bytes exactly,
// and the limit's decimal digits cannot contain the separator.
func Key(query string, limit int, scope string) string {
	return strconv.Itoa(len(query)) + ":" + query + "|" + strconv.Itoa(limit) + "|" + scope
}

type ttlEntry[V any] struct {
	value      V
	scope      string
	insertedAt time.Time
	expiresAt  time.Time
	size       int64
}

// ScopedTTL memoizes (query, limit, scope) to a value with absolute expiry
// and coarse invalidation by scope tag.
//
// An entry whose expiry is at or before the current time is never
// returned: it counts as a miss and is lazily removed on access, or in
// bulk by CleanupExpired. Every entry carries exactly one scope;
// InvalidateScope removes all and only entries under that scope.
//
// All methods are safe for concurrent use; one mutex guards entries,
// the scope index and the counters.
type ScopedTTL[V any] struct {
	mu         sync.Mutex
	defaultTTL time.Duration

	entries map[string]ttlEntry[V]
	scopes  map[string]map[string]struct{}

	now    func() time.Time
	sizeOf func(value V) int64

	sizeEstimate              int64
	hits, misses, expirations uint64
}

// TTLOption configures a ScopedTTL.
type TTLOption[V any] func(*ScopedTTL[V])

// WithTTLSizeFunc installs a per-value size estimator, surfaced through
// Stats for reporting only.
func WithTTLSizeFunc[V any](sizeOf func(value V) int64) TTLOption[V] {
	return func(c *ScopedTTL[V]) {
		c.sizeOf = sizeOf
	}
}

// WithTTLClock overrides the time source. Intended for tests.
func WithTTLClock[V any](now func() time.Time) TTLOption[V] {
	return func(c *ScopedTTL[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// NewScopedTTL creates a scoped TTL cache. A zero defaultTTL selects
// DefaultTTL; a negative one is rejected.
func NewScopedTTL[V any](defaultTTL time.Duration, opts ...TTLOption[V]) (*ScopedTTL[V], error) {
	if defaultTTL < 0 {
		return nil, ErrInvalidTTL
	}
	if defaultTTL == 0 {
		defaultTTL = DefaultTTL
	}

	c := &ScopedTTL[V]{
		defaultTTL: defaultTTL,
		entries:    make(map[string]ttlEntry[V]),
		scopes:     make(map[string]map[string]struct{}),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get returns the cached value for (query, limit, scope) if present and
// not expired. An expired-but-present entry counts as a miss and is
// removed.
func (c *ScopedTTL[V]) Get(query string, limit int, scope string) (V, bool) {
	key := Key(query, limit, scope)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if !e.expiresAt.After(c.now()) {
		c.removeLocked(key, e)
		c.expirations++
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	return e.value, true
}

// Put stores value under (query, limit, scope) with the default TTL.
func (c *ScopedTTL[V]) Put(query string, limit int, scope string, value V) {
	c.PutTTL(query, limit, scope, value, c.defaultTTL)
}

// PutTTL stores value with an explicit TTL. A non-positive ttl falls
// back to the default. An existing entry is replaced wholesale.
func (c *ScopedTTL[V]) PutTTL(query string, limit int, scope string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := Key(query, limit, scope)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if old, ok := c.entries[key]; ok {
		c.sizeEstimate -= old.size
	}

	var size int64
	if c.sizeOf != nil {
		size = c.sizeOf(value)
	}
	c.entries[key] = ttlEntry[V]{
		value:      value,
		scope:      scope,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
		size:       size,
	}
	c.sizeEstimate += size

	keys, ok := c.scopes[scope]
	if !ok {
		keys = make(map[string]struct{})
		c.scopes[scope] = keys
	}
	keys[key] = struct{}{}
}

// InvalidateQuery removes the one entry for (query, limit, scope).
// It reports whether anything was removed.
func (c *ScopedTTL[V]) InvalidateQuery(query string, limit int, scope string) bool {
	key := Key(query, limit, scope)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, e)
	return true
}

// InvalidateScope removes every entry tagged with scope and returns the
// count removed. Entries under other scopes are untouched.
func (c *ScopedTTL[V]) InvalidateScope(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.scopes[scope]
	if !ok {
		return 0
	}

	removed := 0
	for key := range keys {
		if e, ok := c.entries[key]; ok {
			delete(c.entries, key)
			c.sizeEstimate -= e.size
			removed++
		}
	}
	delete(c.scopes, scope)

	return removed
}

// CleanupExpired sweeps all entries whose expiry is at or before the
// current time and returns the count removed. Safe to call on a timer
// or opportunistically.
func (c *ScopedTTL[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			c.removeLocked(key, e)
			removed++
		}
	}
	c.expirations += uint64(removed)

	return removed
}

// Clear removes all entries. Counters are untouched; use ResetStats.
func (c *ScopedTTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]ttlEntry[V])
	c.scopes = make(map[string]map[string]struct{})
	c.sizeEstimate = 0
}

// ResetStats zeroes the hit/miss/expiration counters.
func (c *ScopedTTL[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits = 0
	c.misses = 0
	c.expirations = 0
}

// Stats returns a snapshot of the cache counters.
func (c *ScopedTTL[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		Expirations:  c.expirations,
		Entries:      len(c.entries),
		SizeEstimate: c.sizeEstimate,
	}
}

// Len returns the current number of entries, expired or not.
func (c *ScopedTTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ScopedTTL[V]) removeLocked(key string, e ttlEntry[V]) {
	delete(c.entries, key)
	c.sizeEstimate -= e.size
	if keys, ok := c.scopes[e.scope]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.scopes, e.scope)
		}
	}
}
