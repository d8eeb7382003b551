package retrievalcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement it to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordSearch is called after each Search. cached reports whether
	// the result came from the result cache, err is nil on success.
	RecordSearch(duration time.Duration, cached bool, err error)

	// RecordEmbed is called for each embedding lookup. cached reports
	// whether the vector came from the embedding cache.
	RecordEmbed(duration time.Duration, cached bool, err error)

	// RecordInvalidate is called after a scope invalidation with the
	// number of entries removed.
	RecordInvalidate(removed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordEmbed(time.Duration, bool, error)  {}
func (NoopMetricsCollector) RecordInvalidate(int)                    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external
// dependencies.
type BasicMetricsCollector struct {
	SearchCount        atomic.Int64
	SearchCached       atomic.Int64
	SearchErrors       atomic.Int64
	SearchTotalNanos   atomic.Int64
	EmbedCount         atomic.Int64
	EmbedCached        atomic.Int64
	EmbedErrors        atomic.Int64
	EmbedTotalNanos    atomic.Int64
	InvalidateCount    atomic.Int64
	InvalidatedEntries atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, cached bool, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if cached {
		b.SearchCached.Add(1)
	}
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordEmbed implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEmbed(duration time.Duration, cached bool, err error) {
	b.EmbedCount.Add(1)
	b.EmbedTotalNanos.Add(duration.Nanoseconds())
	if cached {
		b.EmbedCached.Add(1)
	}
	if err != nil {
		b.EmbedErrors.Add(1)
	}
}

// RecordInvalidate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidate(removed int) {
	b.InvalidateCount.Add(1)
	b.InvalidatedEntries.Add(int64(removed))
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount        int64
	SearchCached       int64
	SearchErrors       int64
	SearchAvgNanos     int64
	EmbedCount         int64
	EmbedCached        int64
	EmbedErrors        int64
	EmbedAvgNanos      int64
	InvalidateCount    int64
	InvalidatedEntries int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:        b.SearchCount.Load(),
		SearchCached:       b.SearchCached.Load(),
		SearchErrors:       b.SearchErrors.Load(),
		SearchAvgNanos:     avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		EmbedCount:         b.EmbedCount.Load(),
		EmbedCached:        b.EmbedCached.Load(),
		EmbedErrors:        b.EmbedErrors.Load(),
		EmbedAvgNanos:      avgNanos(b.EmbedTotalNanos.Load(), b.EmbedCount.Load()),
		InvalidateCount:    b.InvalidateCount.Load(),
		InvalidatedEntries: b.InvalidatedEntries.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
