package searcher

import (
	"context"
	"errors"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

// ErrNilTextStore is returned when attempting to create a TextSearcher without a store.
var ErrNilTextStore = errors.New("text store is required")

// ErrNilEmbedder is returned when attempting to create a VectorSearcher without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrNilVectorStore is returned when attempting to create a VectorSearcher without a store.
var ErrNilVectorStore = errors.New("vector store is required")

// Searcher performs search operations and returns ranked results.
//
// Implementations must be thread-safe for concurrent use.
type Searcher interface {
	// Search returns up to limit results, best first. It returns an empty
	// slice (not nil) if nothing matches.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is one matching block.
type Result struct {
	BlockID domain.BlockID
	PageID  domain.PageID

	// Score orders results within one searcher. Text and vector scores are
	// on different scales.
	Score float64

	// MatchedTerms contains the query terms that matched (text only).
	MatchedTerms []string
}
