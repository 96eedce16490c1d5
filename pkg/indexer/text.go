package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// ErrNilStore is returned when attempting to create a TextIndexer without a store.
var ErrNilStore = errors.New("text store is required")

// ErrClosed is returned by indexers after Close.
var ErrClosed = errors.New("indexer is closed")

// TextIndexer keeps a [store.TextIndex] in step with saved pages.
type TextIndexer struct {
	store  store.TextIndex
	mu     sync.RWMutex
	closed bool
}

var (
	_ Indexer = (*TextIndexer)(nil)
	_ Auditor = (*TextIndexer)(nil)
)

// Option configures a TextIndexer.
type Option func(*TextIndexer)

// WithStore sets the text index backend. Required.
func WithStore(s store.TextIndex) Option {
	return func(i *TextIndexer) {
		i.store = s
	}
}

// NewTextIndexer creates a text indexer. Returns ErrNilStore without
// WithStore.
func NewTextIndexer(opts ...Option) (*TextIndexer, error) {
	i := &TextIndexer{}
	for _, opt := range opts {
		opt(i)
	}
	if i.store == nil {
		return nil, ErrNilStore
	}
	return i, nil
}

func (i *TextIndexer) Name() string { return "text" }

// Index writes every block of page.
func (i *TextIndexer) Index(ctx context.Context, page *domain.Page) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	if err := i.store.Index(ctx, page); err != nil {
		return fmt.Errorf("text index: %w", err)
	}
	return nil
}

// Update is Index: the store replaces the page's blocks atomically.
func (i *TextIndexer) Update(ctx context.Context, page *domain.Page) error {
	return i.Index(ctx, page)
}

// Delete removes the page's blocks.
func (i *TextIndexer) Delete(ctx context.Context, id domain.PageID) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	if err := i.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("text delete: %w", err)
	}
	return nil
}

// Covers reports whether the store holds one document per block. Stores
// that cannot count per page are trusted.
func (i *TextIndexer) Covers(ctx context.Context, page *domain.Page) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return false, ErrClosed
	}
	counter, ok := i.store.(store.PageCounter)
	if !ok {
		return true, nil
	}
	n, err := counter.CountPage(ctx, page.ID())
	if err != nil {
		return false, fmt.Errorf("text count: %w", err)
	}
	return n == page.BlockCount(), nil
}

// Stats returns the number of indexed blocks.
func (i *TextIndexer) Stats() IndexStats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return IndexStats{}
	}
	return IndexStats{DocumentCount: i.store.Count()}
}

// Close closes the underlying store.
func (i *TextIndexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if err := i.store.Close(); err != nil {
		return fmt.Errorf("text close: %w", err)
	}
	return nil
}
