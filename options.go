package retrievalcache

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/tutorkit/retrievalcache/cache"
	"github.com/tutorkit/retrievalcache/model"
)

// DefaultEmbeddingCapacity bounds the embedding cache when no capacity
// is configured.
const DefaultEmbeddingCapacity = 4096

type options struct {
	embeddingCapacity int
	embeddingShards   int
	resultTTL         time.Duration
	cleanupInterval   time.Duration
	embedLimiter      *rate.Limiter
	logger            *Logger
	metrics           MetricsCollector
}

// Option configures a Retriever.
type Option func(*options)

// WithEmbeddingCacheSize sets the capacity (entry count) of the
// text-to-vector cache. Defaults to DefaultEmbeddingCapacity.
func WithEmbeddingCacheSize(capacity int) Option {
	return func(o *options) {
		o.embeddingCapacity = capacity
	}
}

// WithEmbeddingCacheShards shards the embedding cache to reduce lock
// contention under high request concurrency. The capacity is split
// across shards. numShards <= 1 disables sharding.
func WithEmbeddingCacheShards(numShards int) Option {
	return func(o *options) {
		o.embeddingShards = numShards
	}
}

// WithResultTTL sets the default time-to-live for cached search
// results. Defaults to cache.DefaultTTL (5 minutes). The TTL bounds
// staleness when a mutation path forgets to invalidate; Invalidate is
// the precise mechanism.
func WithResultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.resultTTL = ttl
	}
}

// WithCleanupInterval runs CleanupExpired on the result cache on a
// timer in a goroutine owned by the Retriever. Close stops it.
// An interval of 0 (the default) disables the sweeper; expired entries
// are still removed lazily on access.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = interval
	}
}

// WithEmbedRateLimit throttles calls to the embedder to at most rps
// calls per second with the given burst. Cache hits are unaffected;
// the limiter is waited on outside any cache lock. Useful when the
// embedder is a paid API that a miss storm could hammer.
func WithEmbedRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.embedLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsCollector sets the metrics collector. Defaults to
// NoopMetricsCollector.
func WithMetricsCollector(metrics MetricsCollector) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// embeddingSize estimates the byte cost of one embedding cache entry,
// for Stats reporting only.
func embeddingSize(query string, vector []float32) int64 {
	return int64(len(query)) + int64(4*len(vector))
}

// resultsSize estimates the byte cost of one cached result list, for
// Stats reporting only.
func resultsSize(results []model.SearchResult) int64 {
	size := int64(0)
	for _, r := range results {
		size += 12 + int64(len(r.Payload)) // id + score + payload
	}
	return size
}

func defaultOptions() options {
	return options{
		embeddingCapacity: DefaultEmbeddingCapacity,
		resultTTL:         cache.DefaultTTL,
		logger:            NoopLogger(),
		metrics:           NoopMetricsCollector{},
	}
}
