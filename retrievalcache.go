package retrievalcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tutorkit/retrievalcache/cache"
	"github.com/tutorkit/retrievalcache/model"
)

// Embedder converts text into a fixed-dimension numeric vector.
// Implementations typically call a remote model and may be slow
// (tens of milliseconds); results are assumed stable for a given text
// within one process.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index runs a similarity search against a knowledge corpus and returns
// the top matches in rank order. scope restricts the search to one
// corpus (e.g. a project); an unscoped index may ignore it.
type Index interface {
	Search(ctx context.Context, scope string, vector []float32, limit int) ([]model.SearchResult, error)
}

// embeddingCache is satisfied by both cache.LRU[string, []float32] and
// cache.ShardedLRU[[]float32].
type embeddingCache interface {
	Get(key string) ([]float32, bool)
	Put(key string, value []float32)
	Clear()
	ResetStats()
	Stats() cache.Stats
	CleanupExpired() int
}

// Retriever sequences the two caches around the external embedding and
// search collaborators.
//
// Search consults the result cache first; on a miss it resolves the
// query's embedding (through the embedding cache), runs the index
// search and stores the ranked results. Concurrent misses for the same
// (query, limit, scope) are collapsed so the collaborators are called
// once per flight; the shared flight is detached from any single
// caller's cancellation. No collaborator call is made while a cache
// lock is held, and collaborator failures propagate unchanged without
// being cached.
type Retriever struct {
	embedder Embedder
	index    Index

	embeddings embeddingCache
	results    *cache.ScopedTTL[[]model.SearchResult]

	flight  singleflight.Group
	limiter *rate.Limiter
	logger  *Logger
	metrics MetricsCollector

	closed      atomic.Bool
	done        chan struct{}
	sweeperDone chan struct{} // nil when the sweeper is disabled
}

// StatsSnapshot combines the per-cache statistics.
type StatsSnapshot struct {
	Embeddings cache.Stats
	Results    cache.Stats
}

// New creates a Retriever around the given collaborators.
func New(embedder Embedder, index Index, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	if index == nil {
		return nil, ErrNilIndex
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var embeddings embeddingCache
	var err error
	if o.embeddingShards > 1 {
		embeddings, err = cache.NewShardedLRU[[]float32](o.embeddingCapacity, o.embeddingShards,
			cache.WithSizeFunc(embeddingSize))
	} else {
		embeddings, err = cache.NewLRU[string, []float32](o.embeddingCapacity,
			cache.WithSizeFunc(embeddingSize))
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	results, err := cache.NewScopedTTL[[]model.SearchResult](o.resultTTL,
		cache.WithTTLSizeFunc(resultsSize))
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}

	r := &Retriever{
		embedder:   embedder,
		index:      index,
		embeddings: embeddings,
		results:    results,
		limiter:    o.embedLimiter,
		logger:     o.logger,
		metrics:    o.metrics,
		done:       make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		r.sweeperDone = make(chan struct{})
		go r.sweep(o.cleanupInterval)
	}

	return r, nil
}

// Search returns the top limit matches for query within scope, serving
// from cache when possible. On a result-cache hit no embedding or index
// work is performed.
//
// Concurrent misses for the same (query, limit, scope) share one
// embedding and index call. The shared call runs to completion even if
// the caller that started it cancels; a caller whose own ctx is done
// returns ctx.Err() without waiting for the flight.
func (r *Retriever) Search(ctx context.Context, query string, limit int, scope string) ([]model.SearchResult, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	start := time.Now()
	if results, ok := r.results.Get(query, limit, scope); ok {
		r.metrics.RecordSearch(time.Since(start), true, nil)
		r.logger.LogSearch(ctx, query, limit, scope, len(results), true, nil)
		return results, nil
	}

	// Collapse concurrent misses for the same composite key. The
	// shared call is detached from the starting caller's cancellation,
	// so one caller giving up cannot fail the others; each caller
	// waits on its own context below.
	ch := r.flight.DoChan(cache.Key(query, limit, scope), func() (any, error) {
		return r.searchMiss(context.WithoutCancel(ctx), query, limit, scope)
	})

	select {
	case <-ctx.Done():
		r.metrics.RecordSearch(time.Since(start), false, ctx.Err())
		r.logger.LogSearch(ctx, query, limit, scope, 0, false, ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			r.metrics.RecordSearch(time.Since(start), false, res.Err)
			r.logger.LogSearch(ctx, query, limit, scope, 0, false, res.Err)
			return nil, res.Err
		}
		results := res.Val.([]model.SearchResult)
		r.metrics.RecordSearch(time.Since(start), false, nil)
		r.logger.LogSearch(ctx, query, limit, scope, len(results), false, nil)
		return results, nil
	}
}

func (r *Retriever) searchMiss(ctx context.Context, query string, limit int, scope string) ([]model.SearchResult, error) {
	// Another flight may have filled the result cache while we queued.
	if results, ok := r.results.Get(query, limit, scope); ok {
		return results, nil
	}

	vector, err := r.embedding(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.index.Search(ctx, scope, vector, limit)
	if err != nil {
		// Failed searches are never cached.
		return nil, err
	}
	r.results.Put(query, limit, scope, results)

	return results, nil
}

// embedding resolves the vector for query, consulting the embedding
// cache first. The embedder runs outside any cache lock.
func (r *Retriever) embedding(ctx context.Context, query string) ([]float32, error) {
	if vector, ok := r.embeddings.Get(query); ok {
		r.metrics.RecordEmbed(0, true, nil)
		r.logger.LogEmbed(ctx, query, len(vector), true, nil)
		return vector, nil
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	vector, err := r.embedder.Embed(ctx, query)
	r.metrics.RecordEmbed(time.Since(start), false, err)
	r.logger.LogEmbed(ctx, query, len(vector), false, err)
	if err != nil {
		return nil, err
	}
	r.embeddings.Put(query, vector)

	return vector, nil
}

// Invalidate drops every cached result for scope and returns the count
// removed. Call it after a corpus mutation under that scope has been
// durably applied.
//
// The embedding cache is left intact: text-to-vector mappings do not
// depend on corpus content. They would only go stale if the embedding
// model itself were replaced, which a Retriever does not support within
// one process.
func (r *Retriever) Invalidate(scope string) int {
	removed := r.results.InvalidateScope(scope)
	r.metrics.RecordInvalidate(removed)
	r.logger.LogInvalidate(scope, removed)
	return removed
}

// InvalidateQuery removes the single cached result for
// (query, limit, scope), reporting whether anything was removed.
func (r *Retriever) InvalidateQuery(query string, limit int, scope string) bool {
	return r.results.InvalidateQuery(query, limit, scope)
}

// CleanupExpired sweeps expired results immediately and returns the
// count removed.
func (r *Retriever) CleanupExpired() int {
	return r.results.CleanupExpired()
}

// Clear empties both caches. Statistics counters are untouched.
func (r *Retriever) Clear() {
	r.embeddings.Clear()
	r.results.Clear()
}

// Stats returns a combined snapshot of both caches.
//
// A cold Search probes the result cache twice, once before joining the
// shared flight and once inside it, so Results.Misses grows by two per
// uncached search and Results.HitRate underestimates the per-Search
// hit fraction.
func (r *Retriever) Stats() StatsSnapshot {
	return StatsSnapshot{
		Embeddings: r.embeddings.Stats(),
		Results:    r.results.Stats(),
	}
}

// ResetStats zeroes the counters of both caches.
func (r *Retriever) ResetStats() {
	r.embeddings.ResetStats()
	r.results.ResetStats()
}

// Close stops the background sweeper, if any. Subsequent Search calls
// return ErrClosed; Close is idempotent.
func (r *Retriever) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)
	if r.sweeperDone != nil {
		<-r.sweeperDone
	}
	return nil
}

func (r *Retriever) sweep(interval time.Duration) {
	defer close(r.sweeperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if removed := r.results.CleanupExpired(); removed > 0 {
				r.logger.LogCleanup(removed)
			}
		}
	}
}
