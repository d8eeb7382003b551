package retrievalcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tutorkit/retrievalcache/model"
	"github.com/tutorkit/retrievalcache/testutil"
)

func newFixture(t *testing.T, opts ...Option) (*Retriever, *testutil.CountingEmbedder, *testutil.StaticIndex) {
	t.Helper()

	embedder := &testutil.CountingEmbedder{Dimension: 16}
	index := testutil.NewStaticIndex()
	index.Add("p1",
		model.SearchResult{ID: 1, Score: 0.95, Payload: []byte("goroutines are lightweight threads")},
		model.SearchResult{ID: 2, Score: 0.87, Payload: []byte("channels connect goroutines")},
	)
	index.Add("p2",
		model.SearchResult{ID: 10, Score: 0.91, Payload: []byte("slices wrap arrays")},
	)

	r, err := New(embedder, index, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r, embedder, index
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()

	t.Run("MissThenHit", func(t *testing.T) {
		r, embedder, index := newFixture(t)

		results, err := r.Search(ctx, "how do goroutines work?", 5, "p1")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint64(1), results[0].ID)
		assert.Equal(t, int64(1), embedder.Calls.Load())
		assert.Equal(t, int64(1), index.Calls.Load())

		// Second identical search: served entirely from the result
		// cache, no embedding or index work.
		results, err = r.Search(ctx, "how do goroutines work?", 5, "p1")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, int64(1), embedder.Calls.Load())
		assert.Equal(t, int64(1), index.Calls.Load())

		st := r.Stats()
		assert.Equal(t, uint64(1), st.Results.Hits)
		assert.Equal(t, uint64(2), st.Results.Misses) // initial miss + searchMiss recheck
	})

	t.Run("LimitIsPartOfTheKey", func(t *testing.T) {
		r, _, index := newFixture(t)

		r.Search(ctx, "q", 1, "p1")
		r.Search(ctx, "q", 2, "p1")
		assert.Equal(t, int64(2), index.Calls.Load())

		results, err := r.Search(ctx, "q", 1, "p1")
		require.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, int64(2), index.Calls.Load())
	})

	t.Run("InvalidateScopeForcesReSearchButKeepsEmbedding", func(t *testing.T) {
		r, embedder, index := newFixture(t)

		_, err := r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		_, err = r.Search(ctx, "other", 5, "p2")
		require.NoError(t, err)

		assert.Equal(t, 1, r.Invalidate("p1"))

		// p1 must re-run the index search with the cached embedding.
		_, err = r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), embedder.Calls.Load(), "embedding cache must survive invalidation")
		assert.Equal(t, int64(3), index.Calls.Load())

		// p2 is untouched.
		_, err = r.Search(ctx, "other", 5, "p2")
		require.NoError(t, err)
		assert.Equal(t, int64(3), index.Calls.Load())
	})

	t.Run("InvalidateQuery", func(t *testing.T) {
		r, _, index := newFixture(t)

		r.Search(ctx, "q", 5, "p1")
		assert.True(t, r.InvalidateQuery("q", 5, "p1"))
		assert.False(t, r.InvalidateQuery("q", 5, "p1"))

		r.Search(ctx, "q", 5, "p1")
		assert.Equal(t, int64(2), index.Calls.Load())
	})

	t.Run("ResultTTLExpiry", func(t *testing.T) {
		r, embedder, index := newFixture(t, WithResultTTL(100*time.Millisecond))

		_, err := r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)

		_, err = r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), index.Calls.Load())

		time.Sleep(150 * time.Millisecond)

		_, err = r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), index.Calls.Load())
		assert.Equal(t, int64(1), embedder.Calls.Load())
	})

	t.Run("EmbedderErrorPropagatesUncached", func(t *testing.T) {
		boom := errors.New("model unavailable")
		embedder := &testutil.CountingEmbedder{Dimension: 16, Err: boom}
		index := testutil.NewStaticIndex()
		index.Add("p1", model.SearchResult{ID: 1, Score: 1})

		r, err := New(embedder, index)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Search(ctx, "q", 5, "p1")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, r.Stats().Results.Entries, "failures must not be cached")
		assert.Equal(t, 0, r.Stats().Embeddings.Entries)

		// Collaborator recovers; the next search succeeds.
		embedder.Err = nil
		results, err := r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, int64(2), embedder.Calls.Load())
	})

	t.Run("IndexErrorPropagatesUncached", func(t *testing.T) {
		embedder := &testutil.CountingEmbedder{Dimension: 16}
		index := testutil.NewStaticIndex()
		index.Err = errors.New("index down")

		r, err := New(embedder, index)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Search(ctx, "q", 5, "p1")
		assert.ErrorIs(t, err, index.Err)
		assert.Equal(t, 0, r.Stats().Results.Entries)
		// The embedding succeeded and is cached; only the failed search
		// result is not.
		assert.Equal(t, 1, r.Stats().Embeddings.Entries)
	})

	t.Run("Validation", func(t *testing.T) {
		r, _, _ := newFixture(t)

		_, err := r.Search(ctx, "", 5, "p1")
		assert.ErrorIs(t, err, ErrEmptyQuery)

		_, err = r.Search(ctx, "q", 0, "p1")
		assert.ErrorIs(t, err, ErrInvalidLimit)

		_, err = New(nil, testutil.NewStaticIndex())
		assert.ErrorIs(t, err, ErrNilEmbedder)

		_, err = New(&testutil.CountingEmbedder{}, nil)
		assert.ErrorIs(t, err, ErrNilIndex)

		_, err = New(&testutil.CountingEmbedder{}, testutil.NewStaticIndex(), WithEmbeddingCacheSize(-1))
		assert.Error(t, err)
	})

	t.Run("ClosedRetriever", func(t *testing.T) {
		r, _, _ := newFixture(t)
		require.NoError(t, r.Close())
		require.NoError(t, r.Close(), "Close is idempotent")

		_, err := r.Search(ctx, "q", 5, "p1")
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("ClearAndStats", func(t *testing.T) {
		r, _, index := newFixture(t)

		r.Search(ctx, "q", 5, "p1")
		st := r.Stats()
		assert.Equal(t, 1, st.Results.Entries)
		assert.Equal(t, 1, st.Embeddings.Entries)
		assert.Greater(t, st.Embeddings.SizeEstimate, int64(0))

		r.Clear()
		st = r.Stats()
		assert.Equal(t, 0, st.Results.Entries)
		assert.Equal(t, 0, st.Embeddings.Entries)

		r.ResetStats()
		st = r.Stats()
		assert.Equal(t, uint64(0), st.Results.Misses)

		r.Search(ctx, "q", 5, "p1")
		assert.Equal(t, int64(2), index.Calls.Load())
	})

	t.Run("ShardedEmbeddingCache", func(t *testing.T) {
		r, embedder, _ := newFixture(t, WithEmbeddingCacheShards(8))

		r.Search(ctx, "q", 5, "p1")
		r.Invalidate("p1")
		r.Search(ctx, "q", 5, "p1")
		assert.Equal(t, int64(1), embedder.Calls.Load())
	})

	t.Run("EmbedRateLimitPath", func(t *testing.T) {
		r, embedder, _ := newFixture(t, WithEmbedRateLimit(1000, 1000))

		_, err := r.Search(ctx, "q", 5, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), embedder.Calls.Load())
	})

	t.Run("MetricsCollector", func(t *testing.T) {
		metrics := &BasicMetricsCollector{}
		r, _, _ := newFixture(t, WithMetricsCollector(metrics))

		r.Search(ctx, "q", 5, "p1")
		r.Search(ctx, "q", 5, "p1")
		r.Invalidate("p1")

		stats := metrics.GetStats()
		assert.Equal(t, int64(2), stats.SearchCount)
		assert.Equal(t, int64(1), stats.SearchCached)
		assert.Equal(t, int64(1), stats.EmbedCount)
		assert.Equal(t, int64(1), stats.InvalidateCount)
		assert.Equal(t, int64(1), stats.InvalidatedEntries)
	})
}

func TestRetriever_SingleflightCollapsesMisses(t *testing.T) {
	ctx := context.Background()

	embedder := &testutil.CountingEmbedder{Dimension: 16, Delay: 50 * time.Millisecond}
	index := testutil.NewStaticIndex()
	index.Add("p1", model.SearchResult{ID: 1, Score: 1, Payload: []byte("doc")})

	r, err := New(embedder, index)
	require.NoError(t, err)
	defer r.Close()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			results, err := r.Search(ctx, "same query", 5, "p1")
			if err != nil {
				return err
			}
			if len(results) != 1 {
				return errors.New("unexpected result count")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), embedder.Calls.Load(), "concurrent identical misses must share one embed call")
	assert.Equal(t, int64(1), index.Calls.Load())
}

func TestRetriever_CallerCancelDoesNotPoisonFlight(t *testing.T) {
	embedder := &testutil.CountingEmbedder{Dimension: 16, Delay: 150 * time.Millisecond}
	index := testutil.NewStaticIndex()
	index.Add("p1", model.SearchResult{ID: 1, Score: 1, Payload: []byte("doc")})

	r, err := New(embedder, index)
	require.NoError(t, err)
	defer r.Close()

	cancelCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Search(cancelCtx, "q", 5, "p1")
		firstErr <- err
	}()

	// Let the first caller start the shared flight, then abandon it
	// mid-embed.
	time.Sleep(20 * time.Millisecond)
	cancel()

	// A second caller with a live context joins the same flight and
	// must still get results.
	results, err := r.Search(context.Background(), "q", 5, "p1")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Equal(t, int64(1), embedder.Calls.Load(), "both callers share one embed call")
	assert.Equal(t, int64(1), index.Calls.Load())
}

func TestRetriever_BackgroundSweeper(t *testing.T) {
	embedder := &testutil.CountingEmbedder{Dimension: 16}
	index := testutil.NewStaticIndex()
	index.Add("p1", model.SearchResult{ID: 1, Score: 1})

	r, err := New(embedder, index,
		WithResultTTL(30*time.Millisecond),
		WithCleanupInterval(20*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "q", 5, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats().Results.Entries)

	assert.Eventually(t, func() bool {
		return r.Stats().Results.Entries == 0
	}, time.Second, 10*time.Millisecond, "sweeper should remove the expired entry")

	// Close must stop the sweeper goroutine (verified by goleak in
	// TestMain).
	require.NoError(t, r.Close())
}
