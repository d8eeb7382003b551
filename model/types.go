package model

import "fmt"

// SearchResult is one ranked match returned by the similarity index.
type SearchResult struct {
	// ID is the stable identifier of the matched knowledge chunk.
	ID uint64
	// Score is the similarity score (index/metric dependent).
	Score float32
	// Payload is the stored chunk content, typically the text fed to
	// the prompt builder.
	Payload []byte
}

// String returns a short representation for logs and debugging.
func (r SearchResult) String() string {
	return fmt.Sprintf("Result(%d: %.4f)", r.ID, r.Score)
}
