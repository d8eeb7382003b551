package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// KeyFunc derives a cache key from a call's arguments. ok=false means
// the arguments cannot be keyed deterministically; the memoizer then
// invokes the wrapped function directly instead of failing.
type KeyFunc[A any] func(args A) (key string, ok bool)

// JSONKey keys calls by the JSON encoding of their arguments. Arguments
// JSON cannot represent (functions, channels, NaN floats, ...) make the
// call bypass the cache.
func JSONKey[A any]() KeyFunc[A] {
	return func(args A) (string, bool) {
		b, err := json.Marshal(args)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

type memoEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoInfo describes the state of one memoized function.
type MemoInfo struct {
	Hits        uint64
	Misses      uint64
	Bypasses    uint64
	Expirations uint64
	Entries     int
	TTL         time.Duration
}

// Memoizer gives a function TTL-based memoization keyed by its
// arguments. It is independent of the domain caches and can wrap any
// deterministic-ish computation.
//
// The wrapped function is never invoked while the memoizer's lock is
// held, and a failed computation is returned to the caller without
// being cached. Concurrent calls with the same key may each invoke the
// function; the last writer wins, which is consistent with the caches'
// put semantics.
type Memoizer[A any, V any] struct {
	fn    func(ctx context.Context, args A) (V, error)
	keyFn KeyFunc[A]
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]memoEntry[V]
	now     func() time.Time

	hits, misses, bypasses, expirations uint64
}

// MemoOption configures a Memoizer.
type MemoOption[A any, V any] func(*Memoizer[A, V])

// WithKeyFunc replaces the default JSON key derivation.
func WithKeyFunc[A any, V any](keyFn KeyFunc[A]) MemoOption[A, V] {
	return func(m *Memoizer[A, V]) {
		if keyFn != nil {
			m.keyFn = keyFn
		}
	}
}

// WithMemoClock overrides the time source. Intended for tests.
func WithMemoClock[A any, V any](now func() time.Time) MemoOption[A, V] {
	return func(m *Memoizer[A, V]) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoizer wraps fn with TTL memoization. A zero ttl selects
// DefaultTTL; a negative one is rejected.
func NewMemoizer[A any, V any](fn func(ctx context.Context, args A) (V, error), ttl time.Duration, opts ...MemoOption[A, V]) (*Memoizer[A, V], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	m := &Memoizer[A, V]{
		fn:      fn,
		keyFn:   JSONKey[A](),
		ttl:     ttl,
		entries: make(map[string]memoEntry[V]),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Call invokes the wrapped function through the cache. Within the TTL,
// identical arguments invoke the function exactly once. Arguments the
// key function cannot serialize bypass the cache entirely.
func (m *Memoizer[A, V]) Call(ctx context.Context, args A) (V, error) {
	key, ok := m.keyFn(args)
	if !ok {
		m.mu.Lock()
		m.bypasses++
		m.mu.Unlock()
		return m.fn(ctx, args)
	}

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		if e.expiresAt.After(m.now()) {
			m.hits++
			m.mu.Unlock()
			return e.value, nil
		}
		delete(m.entries, key)
		m.expirations++
	}
	m.misses++
	m.mu.Unlock()

	value, err := m.fn(ctx, args)
	if err != nil {
		return value, err
	}

	m.mu.Lock()
	m.entries[key] = memoEntry[V]{
		value:     value,
		expiresAt: m.now().Add(m.ttl),
	}
	m.mu.Unlock()

	return value, nil
}

// Func returns the memoized computation with the same signature as the
// wrapped function, so call sites are unchanged.
func (m *Memoizer[A, V]) Func() func(ctx context.Context, args A) (V, error) {
	return m.Call
}

// CacheClear removes all cached results. Counters are untouched.
func (m *Memoizer[A, V]) CacheClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoEntry[V])
}

// CacheStats returns the counters as a Stats snapshot.
func (m *Memoizer[A, V]) CacheStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Hits:        m.hits,
		Misses:      m.misses,
		Expirations: m.expirations,
		Entries:     len(m.entries),
	}
}

// CacheInfo returns the full state, including bypass counts and the TTL.
func (m *Memoizer[A, V]) CacheInfo() MemoInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoInfo{
		Hits:        m.hits,
		Misses:      m.misses,
		Bypasses:    m.bypasses,
		Expirations: m.expirations,
		Entries:     len(m.entries),
		TTL:         m.ttl,
	}
}

// ResetStats zeroes all counters.
func (m *Memoizer[A, V]) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hits = 0
	m.misses = 0
	m.bypasses = 0
	m.expirations = 0
}

// CleanupExpired sweeps expired results and returns the count removed.
func (m *Memoizer[A, V]) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, key)
			removed++
		}
	}
	m.expirations += uint64(removed)

	return removed
}
