package testutil

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutorkit/retrievalcache/model"
)

// CountingEmbedder is a deterministic in-process Embedder for tests and
// examples. The same text always produces the same vector, and Calls
// counts how often the (simulated) model was actually invoked.
type CountingEmbedder struct {
	// Dimension of produced vectors. Zero defaults to 64.
	Dimension int
	// Delay is slept per call to simulate a slow model.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error
	// Calls counts invocations.
	Calls atomic.Int64
}

// Embed derives a vector from text: an FNV-1a hash of the text seeds
// an RNG that fills the vector, so identical text always maps to an
// identical vector.
func (e *CountingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.Calls.Add(1)

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Err != nil {
		return nil, e.Err
	}

	dim := e.Dimension
	if dim <= 0 {
		dim = 64
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))

	vector := make([]float32, dim)
	NewRNG(int64(h.Sum64())).FillUniform(vector)

	return vector, nil
}

// StaticIndex is a fake similarity index serving pre-ranked results per
// scope. Calls counts searches that reached the index.
type StaticIndex struct {
	mu    sync.Mutex
	docs  map[string][]model.SearchResult
	Err   error
	Calls atomic.Int64
}

// NewStaticIndex creates an empty StaticIndex.
func NewStaticIndex() *StaticIndex {
	return &StaticIndex{
		docs: make(map[string][]model.SearchResult),
	}
}

// Add appends pre-ranked results to a scope's corpus.
func (i *StaticIndex) Add(scope string, results ...model.SearchResult) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[scope] = append(i.docs[scope], results...)
}

// Remove drops every result for a scope, simulating a corpus mutation.
func (i *StaticIndex) Remove(scope string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.docs, scope)
}

// Search returns the top limit pre-ranked results for scope. The query
// vector is ignored; ranking fidelity is not what these fakes test.
func (i *StaticIndex) Search(ctx context.Context, scope string, vector []float32, limit int) ([]model.SearchResult, error) {
	i.Calls.Add(1)

	if i.Err != nil {
		return nil, i.Err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ranked := i.docs[scope]
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]model.SearchResult, len(ranked))
	copy(out, ranked)

	return out, nil
}
