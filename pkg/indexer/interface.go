package indexer

import (
	"context"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

// Indexer is a downstream index kept in step with the structured store.
//
// Implementations must be safe for concurrent use.
type Indexer interface {
	// Name identifies the target in reports and logs.
	Name() string

	// Index adds a page that the index has not seen.
	Index(ctx context.Context, page *domain.Page) error

	// Update replaces everything the index holds for the page.
	Update(ctx context.Context, page *domain.Page) error

	// Delete removes a page. Unknown pages are a no-op.
	Delete(ctx context.Context, id domain.PageID) error

	// Stats returns a snapshot of index statistics.
	Stats() IndexStats

	// Close releases resources. Safe to call more than once.
	Close() error
}

// IndexStats holds statistics about an index.
type IndexStats struct {
	// DocumentCount is the number of indexed blocks (text) or chunks (vector).
	DocumentCount int
}

// Flusher is implemented by indexers that buffer writes in memory. Flush
// makes everything indexed so far durable.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Auditor is implemented by indexers that can check a single page.
type Auditor interface {
	// Covers reports whether the index holds exactly what page requires.
	Covers(ctx context.Context, page *domain.Page) (bool, error)
}
