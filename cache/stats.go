package cache

// Stats is a point-in-time snapshot of a cache's counters.
//
// Hits, Misses, Evictions and Expirations only ever increase, except
// through an explicit ResetStats. SizeEstimate is an approximate byte
// cost for reporting; it plays no part in eviction decisions.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Expirations  uint64
	Entries      int
	SizeEstimate int64
}

// HitRate returns the fraction of lookups served from cache,
// hits / (hits + misses). Before any lookup it is 0.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
