package retrievalcache

import "errors"

var (
	// ErrInvalidLimit is returned when the requested result limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrEmptyQuery is returned when the query text is empty.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrNilEmbedder is returned when a Retriever is constructed without an embedder.
	ErrNilEmbedder = errors.New("embedder must not be nil")
	// ErrNilIndex is returned when a Retriever is constructed without an index.
	ErrNilIndex = errors.New("index must not be nil")
	// ErrClosed is returned by operations on a closed Retriever.
	ErrClosed = errors.New("retriever is closed")
)
