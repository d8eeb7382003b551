package cache

import (
	"github.com/cespare/xxhash/v2"
)

// ShardedLRU distributes a string-keyed LRU across independent shards
// to reduce lock contention under concurrent request handlers. The
// capacity is split evenly across shards, so each shard enforces its
// own bound and the total never exceeds the configured capacity
// (rounded up to one entry per shard).
type ShardedLRU[V any] struct {
	shards []*LRU[string, V]
}

// NewShardedLRU creates a sharded LRU with the given total capacity.
func NewShardedLRU[V any](capacity, numShards int, opts ...LRUOption[string, V]) (*ShardedLRU[V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if numShards <= 0 {
		return nil, ErrInvalidShards
	}

	shardCapacity := capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &ShardedLRU[V]{
		shards: make([]*LRU[string, V], numShards),
	}
	for i := range s.shards {
		shard, err := NewLRU[string, V](shardCapacity, opts...)
		if err != nil {
			return nil, err
		}
		s.shards[i] = shard
	}

	return s, nil
}

func (s *ShardedLRU[V]) shard(key string) *LRU[string, V] {
	idx := xxhash.Sum64String(key) % uint64(len(s.shards))
	return s.shards[idx]
}

// Get returns the cached value for key and touches it in its shard.
func (s *ShardedLRU[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

// Put inserts or replaces the entry for key in its shard.
func (s *ShardedLRU[V]) Put(key string, value V) {
	s.shard(key).Put(key, value)
}

// Remove deletes the entry for key if present.
func (s *ShardedLRU[V]) Remove(key string) bool {
	return s.shard(key).Remove(key)
}

// Clear removes all entries from every shard. Counters are untouched.
func (s *ShardedLRU[V]) Clear() {
	for _, shard := range s.shards {
		shard.Clear()
	}
}

// ResetStats zeroes the counters of every shard.
func (s *ShardedLRU[V]) ResetStats() {
	for _, shard := range s.shards {
		shard.ResetStats()
	}
}

// Stats returns counters aggregated across shards. Per-shard counters
// are exact, so the aggregate accounts for every Get and eviction.
func (s *ShardedLRU[V]) Stats() Stats {
	var agg Stats
	for _, shard := range s.shards {
		st := shard.Stats()
		agg.Hits += st.Hits
		agg.Misses += st.Misses
		agg.Evictions += st.Evictions
		agg.Entries += st.Entries
		agg.SizeEstimate += st.SizeEstimate
	}
	return agg
}

// CleanupExpired exists for interface symmetry and always returns 0.
func (s *ShardedLRU[V]) CleanupExpired() int {
	return 0
}

// Len returns the total number of entries across shards.
func (s *ShardedLRU[V]) Len() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}
