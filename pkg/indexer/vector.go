package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/embed"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// ErrNilEmbedder is returned when attempting to create a VectorIndexer without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrNilVectorStore is returned when attempting to create a VectorIndexer without a vector store.
var ErrNilVectorStore = errors.New("vector store is required")

// VectorIndexer embeds block text and stores one vector per chunk.
//
// Each block is preprocessed with its page title and hierarchy, split into
// overlapping word windows, and embedded in batches.
type VectorIndexer struct {
	embedder  embed.Embedder
	store     store.VectorIndex
	maxWords  int
	overlap   int
	batchSize int

	// dirty is set by writes not yet saved.
	dirty atomic.Bool

	mu     sync.RWMutex
	closed bool
}

var (
	_ Indexer = (*VectorIndexer)(nil)
	_ Flusher = (*VectorIndexer)(nil)
	_ Auditor = (*VectorIndexer)(nil)
)

// VectorOption configures a VectorIndexer.
type VectorOption func(*VectorIndexer)

// WithEmbedder sets the embedder. Required.
func WithEmbedder(e embed.Embedder) VectorOption {
	return func(v *VectorIndexer) {
		v.embedder = e
	}
}

// WithVectorStore sets the vector index backend. Required.
func WithVectorStore(s store.VectorIndex) VectorOption {
	return func(v *VectorIndexer) {
		v.store = s
	}
}

// WithChunking sets the chunk size and overlap in words.
func WithChunking(maxWords, overlap int) VectorOption {
	return func(v *VectorIndexer) {
		v.maxWords = maxWords
		v.overlap = overlap
	}
}

// WithBatchSize sets how many chunks go to the embedder per call.
func WithBatchSize(n int) VectorOption {
	return func(v *VectorIndexer) {
		v.batchSize = n
	}
}

// NewVectorIndexer creates a vector indexer.
//
// Returns ErrNilEmbedder or ErrNilVectorStore if a dependency is missing.
func NewVectorIndexer(opts ...VectorOption) (*VectorIndexer, error) {
	v := &VectorIndexer{
		maxWords:  embed.DefaultMaxWords,
		overlap:   embed.DefaultOverlapWords,
		batchSize: embed.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if v.store == nil {
		return nil, ErrNilVectorStore
	}
	if v.batchSize <= 0 {
		v.batchSize = embed.DefaultBatchSize
	}
	return v, nil
}

func (v *VectorIndexer) Name() string { return "vector" }

// pendingChunk is a chunk waiting for its embedding.
type pendingChunk struct {
	id      domain.ChunkID
	text    string
	payload store.ChunkPayload
}

// chunksFor preprocesses and chunks every non-empty block of page.
func (v *VectorIndexer) chunksFor(page *domain.Page) []pendingChunk {
	var out []pendingChunk
	for _, b := range page.Blocks() {
		if strings.TrimSpace(b.Content()) == "" {
			continue
		}

		path, err := page.HierarchyPath(b.ID())
		if err != nil {
			continue
		}
		hierarchy := make([]string, len(path))
		for i, p := range path {
			hierarchy[i] = p.Content()
		}

		text := embed.Preprocess(b.Content(), page.Title(), hierarchy)
		for n, chunk := range embed.Chunk(text, v.maxWords, v.overlap) {
			out = append(out, pendingChunk{
				id:   domain.NewChunkID(b.ID(), n),
				text: chunk,
				payload: store.ChunkPayload{
					PageID:    page.ID(),
					BlockID:   b.ID(),
					PageTitle: page.Title(),
					Text:      b.Content(),
					Hierarchy: hierarchy,
				},
			})
		}
	}
	return out
}

// Index replaces the page's vectors. Old chunks are removed first so that a
// block that shrank leaves no stale chunk behind.
func (v *VectorIndexer) Index(ctx context.Context, page *domain.Page) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return ErrClosed
	}

	// Marked on return so a concurrent Flush never clears the flag before
	// these writes land.
	defer v.dirty.Store(true)
	if err := v.store.DeleteByPage(ctx, page.ID()); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}

	chunks := v.chunksFor(page)
	for start := 0; start < len(chunks); start += v.batchSize {
		batch := chunks[start:min(start+v.batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.text
		}
		vectors, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed page %s: %w", page.ID(), err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			if err := v.store.Upsert(ctx, c.id, vectors[i], c.payload); err != nil {
				return fmt.Errorf("vector upsert %s: %w", c.id, err)
			}
		}
	}
	return nil
}

// Update is Index.
func (v *VectorIndexer) Update(ctx context.Context, page *domain.Page) error {
	return v.Index(ctx, page)
}

// Delete removes every chunk of the page.
func (v *VectorIndexer) Delete(ctx context.Context, id domain.PageID) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return ErrClosed
	}
	defer v.dirty.Store(true)
	if err := v.store.DeleteByPage(ctx, id); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// Flush saves the vector store when something changed since the last save.
func (v *VectorIndexer) Flush(_ context.Context) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return ErrClosed
	}
	if !v.dirty.Swap(false) {
		return nil
	}
	if err := v.store.Save(); err != nil {
		v.dirty.Store(true)
		return fmt.Errorf("vector save: %w", err)
	}
	return nil
}

// Covers reports whether the store holds one vector for every chunk the
// page produces. Stores that cannot count per page are trusted.
func (v *VectorIndexer) Covers(ctx context.Context, page *domain.Page) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return false, ErrClosed
	}
	counter, ok := v.store.(store.PageCounter)
	if !ok {
		return true, nil
	}
	n, err := counter.CountPage(ctx, page.ID())
	if err != nil {
		return false, fmt.Errorf("vector count: %w", err)
	}
	return n == len(v.chunksFor(page)), nil
}

// Stats returns the number of stored chunks.
func (v *VectorIndexer) Stats() IndexStats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return IndexStats{}
	}
	return IndexStats{DocumentCount: v.store.Count()}
}

// Close saves and closes the vector store, then closes the embedder.
func (v *VectorIndexer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.dirty.Store(false)

	return errors.Join(
		v.store.Save(),
		v.store.Close(),
		v.embedder.Close(),
	)
}
