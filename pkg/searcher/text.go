package searcher

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/blockindex/internal/store"
)

// TextSearcher performs keyword search over a [store.TextIndex].
type TextSearcher struct {
	store store.TextIndex
}

var _ Searcher = (*TextSearcher)(nil)

// TextOption configures TextSearcher.
type TextOption func(*TextSearcher)

// WithTextStore sets the text index backend.
func WithTextStore(s store.TextIndex) TextOption {
	return func(searcher *TextSearcher) {
		searcher.store = s
	}
}

// NewTextSearcher creates a text searcher. Returns ErrNilTextStore without
// WithTextStore.
func NewTextSearcher(opts ...TextOption) (*TextSearcher, error) {
	s := &TextSearcher{}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		return nil, ErrNilTextStore
	}
	return s, nil
}

// Search runs query against the text index.
func (s *TextSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	hits, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			BlockID:      h.BlockID,
			PageID:       h.PageID,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
		}
	}
	return results, nil
}
