// Package embed defines the embedding interface used by semantic
// retrieval. Embedding is produced by an external service in
// production; the static embedder here is the deterministic,
// dependency-free default for local use and tests.
package embed

import "context"

// StaticDimensions is the dimensionality of the static embedder.
const StaticDimensions = 256

// Embedder converts text into dense vectors.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName identifies the embedding model.
	ModelName() string

	// Close releases resources.
	Close() error
}
