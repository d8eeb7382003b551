// Package retrievalcache is a process-local caching layer for
// retrieval-augmented applications. It sits in front of two expensive
// collaborators, a text-embedding model and a vector-similarity
// index, and memoizes their outputs with bounded memory, correct
// eviction under load, and scope-tagged invalidation when the backing
// knowledge corpus mutates.
//
// # Quick Start
//
//	retriever, _ := retrievalcache.New(embedder, index,
//	    retrievalcache.WithEmbeddingCacheSize(8192),
//	    retrievalcache.WithResultTTL(5*time.Minute),
//	)
//	defer retriever.Close()
//
//	results, err := retriever.Search(ctx, "how do goroutines work?", 5, projectID)
//
// After any insert, update or delete against a project's corpus:
//
//	retriever.Invalidate(projectID)
//
// # Layering
//
// Search results are cached per (query, limit, scope) with a TTL and
// precise scope invalidation. Query embeddings are cached separately in
// a bounded LRU and survive corpus mutations, since text-to-vector is
// independent of corpus content for a fixed model. The cache primitives
// live in the cache subpackage and are usable on their own, including a
// generic TTL memoizer for wrapping arbitrary computations.
//
// The layer is invisible on the error path: collaborator failures
// propagate unchanged and are never cached.
package retrievalcache
