package searcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/embed"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// chunkOversample widens the vector search because several chunks of one
// block collapse into a single result.
const chunkOversample = 3

// VectorSearcher performs similarity search using embeddings.
type VectorSearcher struct {
	embedder embed.Embedder
	store    store.VectorIndex
}

var _ Searcher = (*VectorSearcher)(nil)

// VectorOption configures VectorSearcher.
type VectorOption func(*VectorSearcher)

// WithSearchEmbedder sets the embedder for query embedding.
func WithSearchEmbedder(e embed.Embedder) VectorOption {
	return func(s *VectorSearcher) {
		s.embedder = e
	}
}

// WithSearchVectorStore sets the vector index backend.
func WithSearchVectorStore(vs store.VectorIndex) VectorOption {
	return func(s *VectorSearcher) {
		s.store = vs
	}
}

// NewVectorSearcher creates a vector searcher.
//
// Returns ErrNilEmbedder or ErrNilVectorStore if dependencies are missing.
func NewVectorSearcher(opts ...VectorOption) (*VectorSearcher, error) {
	s := &VectorSearcher{}
	for _, opt := range opts {
		opt(s)
	}
	if s.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if s.store == nil {
		return nil, ErrNilVectorStore
	}
	return s, nil
}

// Search embeds query and returns the closest blocks.
func (s *VectorSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query failed: %w", err)
	}

	hits, err := s.store.Search(ctx, embedding, limit*chunkOversample)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	best := make(map[domain.BlockID]Result)
	for _, h := range hits {
		score := float64(h.Score)
		if r, ok := best[h.Payload.BlockID]; ok && r.Score >= score {
			continue
		}
		best[h.Payload.BlockID] = Result{
			BlockID: h.Payload.BlockID,
			PageID:  h.Payload.PageID,
			Score:   score,
		}
	}

	results := make([]Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].BlockID < results[j].BlockID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
