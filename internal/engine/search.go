package engine

import (
	"context"
	"strings"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/pkg/searcher"
)

// SearchMode picks the index a search runs against.
type SearchMode string

const (
	SearchText   SearchMode = "text"
	SearchVector SearchMode = "vector"
)

// Hit is a search result resolved against the structured store.
type Hit struct {
	PageID  domain.PageID  `json:"page_id"`
	Title   string         `json:"title"`
	BlockID domain.BlockID `json:"block_id"`
	Content string         `json:"content"`
	// Path holds the contents of the block's ancestors, root first.
	Path         []string `json:"path,omitempty"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Search runs query in mode and returns up to limit hits, best first. A
// limit of zero or less takes search.max_results. Hits whose page or block
// is no longer stored are dropped.
func (e *Engine) Search(ctx context.Context, query string, mode SearchMode, limit int) ([]Hit, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, amerrors.ValidationError("search query is empty", nil)
	}
	if limit <= 0 {
		limit = e.cfg.Search.MaxResults
	}

	var s searcher.Searcher
	switch mode {
	case SearchText, "":
		s = e.textSearch
	case SearchVector:
		if e.vectorSearch == nil {
			return nil, amerrors.ValidationError("vector search is disabled", nil).
				WithSuggestion("set vectors.enabled: true and re-import")
		}
		s = e.vectorSearch
	default:
		return nil, amerrors.ValidationError("unknown search mode "+string(mode), nil).
			WithSuggestion("use text or vector")
	}

	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	pages := make(map[domain.PageID]*domain.Page)
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		page, ok := pages[r.PageID]
		if !ok {
			page, err = e.repo.FindByID(ctx, r.PageID)
			if err != nil {
				return nil, err
			}
			pages[r.PageID] = page
		}
		if page == nil {
			continue
		}
		path, err := page.HierarchyPath(r.BlockID)
		if err != nil {
			continue
		}
		hit := Hit{
			PageID:       r.PageID,
			Title:        page.Title(),
			BlockID:      r.BlockID,
			Content:      path[len(path)-1].Content(),
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
		}
		for _, b := range path[:len(path)-1] {
			hit.Path = append(hit.Path, b.Content())
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
