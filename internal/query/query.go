// Package query answers read-only questions about stored pages: which pages
// mention a URL, and which links and references a page holds in context.
package query

import (
	"context"
	"sort"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// PageLinks is a page together with its URLs in context.
type PageLinks struct {
	PageID domain.PageID       `json:"page_id"`
	Title  string              `json:"title"`
	Links  []domain.URLContext `json:"links"`
}

// PageReferences is a page together with its references in context.
type PageReferences struct {
	PageID     domain.PageID             `json:"page_id"`
	Title      string                    `json:"title"`
	References []domain.ReferenceContext `json:"references"`
}

// PagesForURL returns every page that mentions url, ordered by title, with
// the blocks holding it. Repositories implementing store.URLLookup answer
// from their index; others are scanned.
func PagesForURL(ctx context.Context, repo store.PageRepository, url string) ([]store.PageConnection, error) {
	u, err := domain.NewURL(url)
	if err != nil {
		return nil, err
	}
	if lookup, ok := repo.(store.URLLookup); ok {
		return lookup.FindPagesByURL(ctx, u.String())
	}

	pages, err := repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.PageConnection
	for _, p := range pages {
		if conn, ok := connection(p, u.String()); ok {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].PageID < out[j].PageID
	})
	return out, nil
}

func connection(p *domain.Page, url string) (store.PageConnection, bool) {
	conn := store.PageConnection{PageID: p.ID(), Title: p.Title()}
	for _, b := range p.Blocks() {
		for _, u := range b.URLs() {
			if u.String() == url {
				conn.BlockIDs = append(conn.BlockIDs, b.ID())
				break
			}
		}
	}
	return conn, len(conn.BlockIDs) > 0
}

// LinksForPage returns the URLs of a page with their surrounding
// references.
func LinksForPage(ctx context.Context, repo store.PageRepository, id domain.PageID) (*PageLinks, error) {
	page, err := load(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	return &PageLinks{PageID: page.ID(), Title: page.Title(), Links: page.URLsWithContext()}, nil
}

// ReferencesForPage returns the references of a page with their
// surrounding URLs.
func ReferencesForPage(ctx context.Context, repo store.PageRepository, id domain.PageID) (*PageReferences, error) {
	page, err := load(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	return &PageReferences{PageID: page.ID(), Title: page.Title(), References: page.ReferencesWithContext()}, nil
}

// ResolveTitle finds the page with the given title.
func ResolveTitle(ctx context.Context, repo store.PageRepository, title string) (domain.PageID, error) {
	page, err := repo.FindByTitle(ctx, title)
	if err != nil {
		return "", err
	}
	if page == nil {
		return "", amerrors.NotFoundError("page titled", title)
	}
	return page.ID(), nil
}

func load(ctx context.Context, repo store.PageRepository, id domain.PageID) (*domain.Page, error) {
	page, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, amerrors.NotFoundError("page", string(id))
	}
	return page, nil
}
