package engine

import (
	"context"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/query"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// PagesForURL returns the pages that mention url.
func (e *Engine) PagesForURL(ctx context.Context, url string) ([]store.PageConnection, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return query.PagesForURL(ctx, e.repo, url)
}

// LinksForPage returns the URLs of the page titled title, in context.
func (e *Engine) LinksForPage(ctx context.Context, title string) (*query.PageLinks, error) {
	id, err := e.resolve(ctx, title)
	if err != nil {
		return nil, err
	}
	return query.LinksForPage(ctx, e.repo, id)
}

// ReferencesForPage returns the references of the page titled title, in
// context.
func (e *Engine) ReferencesForPage(ctx context.Context, title string) (*query.PageReferences, error) {
	id, err := e.resolve(ctx, title)
	if err != nil {
		return nil, err
	}
	return query.ReferencesForPage(ctx, e.repo, id)
}

// Page returns the page titled title.
func (e *Engine) Page(ctx context.Context, title string) (*domain.Page, error) {
	id, err := e.resolve(ctx, title)
	if err != nil {
		return nil, err
	}
	return e.repo.FindByID(ctx, id)
}

func (e *Engine) resolve(ctx context.Context, title string) (domain.PageID, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	return query.ResolveTitle(ctx, e.repo, title)
}
