// Package cache provides the in-memory caching primitives used by the
// retrieval layer.
//
// # Bounded LRU (embeddings)
//
// LRU memoizes key/value with a hard entry-count bound and
// least-recently-used eviction. The access ordering is kept in an
// array-backed arena of doubly linked nodes addressed by integer
// handles, so touch and evict are O(1) without cyclic pointers.
// ShardedLRU splits the capacity across shards (xxhash routing) for
// high-concurrency workloads.
//
// # Scoped TTL (search results)
//
// ScopedTTL memoizes (query, limit, scope) to a value with absolute expiry.
// Every entry is tagged with one scope; InvalidateScope removes all and
// only entries under that scope, which is the precise defense against
// serving stale results after the backing corpus changes. The TTL is
// the safety net for mutation paths that forget to invalidate.
//
// # Memoizer
//
// Memoizer gives an arbitrary computation TTL-based memoization keyed
// by a pluggable serialization of its arguments. Arguments that cannot
// be keyed deterministically bypass the cache instead of failing.
//
// All caches guard their state with a single mutex per instance;
// statistics counters are updated under the same lock and are exact.
// No backing computation ever runs while a cache lock is held.
package cache
