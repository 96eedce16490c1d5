// Package store provides the persistence layer: the structured page store
// (SQLite or in-memory), the full-text block index (Bleve or SQLite FTS5) and
// the vector index (HNSW).
package store

import (
	"context"
	"strings"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

// PageRepository persists whole pages. Save replaces every block of the
// page in one transaction.
type PageRepository interface {
	Save(ctx context.Context, page *domain.Page) error
	FindByID(ctx context.Context, id domain.PageID) (*domain.Page, error)
	FindByTitle(ctx context.Context, title string) (*domain.Page, error)
	FindAll(ctx context.Context) ([]*domain.Page, error)
	// Delete removes the page and its file mapping. It reports whether the
	// page existed.
	Delete(ctx context.Context, id domain.PageID) (bool, error)
	Count(ctx context.Context) (int, error)
}

// PageConnection is a page that mentions a URL, with the blocks that hold it.
type PageConnection struct {
	PageID   domain.PageID
	Title    string
	BlockIDs []domain.BlockID
}

// URLLookup is implemented by repositories that index URLs.
type URLLookup interface {
	FindPagesByURL(ctx context.Context, url string) ([]PageConnection, error)
}

// TextDocument is one block as stored in a text index.
type TextDocument struct {
	BlockID   string `json:"-"`
	PageID    string `json:"page_id"`
	PageTitle string `json:"page_title"`
	Content   string `json:"content"`
	Refs      string `json:"refs"`
}

// TextHit is a single full-text search result.
type TextHit struct {
	BlockID      domain.BlockID
	PageID       domain.PageID
	Score        float64
	MatchedTerms []string
}

// TextIndex is a keyword index of blocks. Each call is atomic per page;
// Index replaces whatever the index held for the page.
type TextIndex interface {
	Index(ctx context.Context, page *domain.Page) error
	Delete(ctx context.Context, id domain.PageID) error
	Search(ctx context.Context, query string, limit int) ([]*TextHit, error)
	Count() int
	Close() error
}

// ChunkPayload is stored next to each vector.
type ChunkPayload struct {
	PageID    domain.PageID
	BlockID   domain.BlockID
	PageTitle string
	Text      string
	Hierarchy []string
}

// VectorHit is a single similarity search result.
type VectorHit struct {
	ChunkID  domain.ChunkID
	Payload  ChunkPayload
	Distance float32
	Score    float32
}

// VectorIndex stores chunk embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, id domain.ChunkID, vector []float32, payload ChunkPayload) error
	DeleteByPage(ctx context.Context, id domain.PageID) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)
	Count() int
	Save() error
	Close() error
}

// PageCounter is implemented by indexes that can count the entries of one
// page: text documents, or vector chunks.
type PageCounter interface {
	CountPage(ctx context.Context, id domain.PageID) (int, error)
}

// documentsFor flattens a page into one text document per block.
func documentsFor(page *domain.Page) []*TextDocument {
	blocks := page.Blocks()
	docs := make([]*TextDocument, 0, len(blocks))
	for _, b := range blocks {
		refs := b.References()
		texts := make([]string, len(refs))
		for i, r := range refs {
			texts[i] = r.Text
		}
		docs = append(docs, &TextDocument{
			BlockID:   string(b.ID()),
			PageID:    string(page.ID()),
			PageTitle: page.Title(),
			Content:   b.Content(),
			Refs:      strings.Join(texts, " "),
		})
	}
	return docs
}
