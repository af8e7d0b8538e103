// Package embedder maps texts to fixed-dimension vectors per spec §4.4,
// with batching, retry, and an LRU cache keyed by chunk content hash.
// Grounded on the teacher's internal/rag/embedder.Embedder interface.
package embedder

import "context"

// Embedder maps N texts to N fixed-dimension vectors.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns a model identifier string.
	Name() string
	// Dimension returns the embedding dimensionality.
	Dimension() int
	// Ping checks whether the embedding backend is reachable.
	Ping(ctx context.Context) error
}
