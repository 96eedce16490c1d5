// Package embed turns block text into vectors for the similarity index.
package embed

import (
	"context"
	"math"
)

const (
	// DefaultBatchSize is the number of chunks sent to EmbedBatch at once.
	DefaultBatchSize = 32

	// StaticDimensions is the embedding dimension of StaticEmbedder.
	StaticDimensions = 256

	// DefaultMaxWords is the chunk size in words.
	DefaultMaxWords = 150

	// DefaultOverlapWords is how many words consecutive chunks share.
	DefaultOverlapWords = 50
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors are returned
// as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
