package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/embed"
	"github.com/Aman-CERP/blockindex/internal/parser"
	"github.com/Aman-CERP/blockindex/internal/store"
)

func testPage(t *testing.T, id domain.PageID, text string) *domain.Page {
	t.Helper()
	page, err := parser.New().ParsePage(id, "Notes", text)
	require.NoError(t, err)
	return page
}

func newVectorStore(t *testing.T) *store.HNSWVectorIndex {
	t.Helper()
	vs, err := store.NewHNSWVectorIndex(store.VectorConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	return vs
}

// countingEmbedder wraps StaticEmbedder and records batch sizes.
type countingEmbedder struct {
	*embed.StaticEmbedder
	batches []int
	fail    error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	if c.fail != nil {
		return nil, c.fail
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestNewTextIndexer_RequiresStore(t *testing.T) {
	_, err := NewTextIndexer()
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestNewVectorIndexer_RequiresDependencies(t *testing.T) {
	_, err := NewVectorIndexer(WithVectorStore(newVectorStore(t)))
	assert.ErrorIs(t, err, ErrNilEmbedder)

	_, err = NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedder()))
	assert.ErrorIs(t, err, ErrNilVectorStore)
}

func TestTextIndexer_IndexUpdateDelete(t *testing.T) {
	ctx := context.Background()
	ts, err := store.NewBleveTextIndex("")
	require.NoError(t, err)
	ti, err := NewTextIndexer(WithStore(ts))
	require.NoError(t, err)
	defer func() { _ = ti.Close() }()

	// Given: an indexed page
	require.NoError(t, ti.Index(ctx, testPage(t, "page-a", "- one\n- two\n")))
	assert.Equal(t, 2, ti.Stats().DocumentCount)

	// When: it is updated with fewer blocks
	require.NoError(t, ti.Update(ctx, testPage(t, "page-a", "- one\n")))

	// Then: the index holds only the new blocks
	assert.Equal(t, 1, ti.Stats().DocumentCount)

	require.NoError(t, ti.Delete(ctx, "page-a"))
	assert.Equal(t, 0, ti.Stats().DocumentCount)
	assert.Equal(t, "text", ti.Name())
}

func TestTextIndexer_ClosedRejectsCalls(t *testing.T) {
	ts, err := store.NewBleveTextIndex("")
	require.NoError(t, err)
	ti, err := NewTextIndexer(WithStore(ts))
	require.NoError(t, err)

	require.NoError(t, ti.Close())
	require.NoError(t, ti.Close())
	assert.ErrorIs(t, ti.Index(context.Background(), testPage(t, "page-a", "- x\n")), ErrClosed)
}

func TestVectorIndexer_ChunksLongBlocksAndBatches(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	vs := newVectorStore(t)
	vi, err := NewVectorIndexer(
		WithEmbedder(emb),
		WithVectorStore(vs),
		WithChunking(10, 5),
		WithBatchSize(2),
	)
	require.NoError(t, err)
	defer func() { _ = vi.Close() }()

	// Given: one short block and one block long enough to split
	long := strings.Repeat("word ", 20)
	page := testPage(t, "page-a", "- short\n- "+long+"\n")

	// When: indexing
	require.NoError(t, vi.Index(ctx, page))

	// Then: every chunk is stored and batches respect the size
	assert.Greater(t, vi.Stats().DocumentCount, 2)
	for _, n := range emb.batches {
		assert.LessOrEqual(t, n, 2)
	}
}

func TestVectorIndexer_Update_DropsStaleChunks(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	vi, err := NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedder()), WithVectorStore(vs))
	require.NoError(t, err)
	defer func() { _ = vi.Close() }()

	require.NoError(t, vi.Index(ctx, testPage(t, "page-a", "- one\n- two\n- three\n")))
	assert.Equal(t, 3, vi.Stats().DocumentCount)

	require.NoError(t, vi.Update(ctx, testPage(t, "page-a", "- one\n")))
	assert.Equal(t, 1, vi.Stats().DocumentCount)

	require.NoError(t, vi.Delete(ctx, "page-a"))
	assert.Equal(t, 0, vi.Stats().DocumentCount)
}

func TestVectorIndexer_PayloadCarriesHierarchy(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	vi, err := NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedder()), WithVectorStore(vs))
	require.NoError(t, err)
	defer func() { _ = vi.Close() }()

	require.NoError(t, vi.Index(ctx, testPage(t, "page-a", "- parent topic\n  - child detail\n")))

	q, err := embed.NewStaticEmbedder().Embed(ctx, embed.Preprocess("child detail", "Notes", []string{"parent topic", "child detail"}))
	require.NoError(t, err)
	hits, err := vs.Search(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "child detail", hits[0].Payload.Text)
	assert.Equal(t, []string{"parent topic", "child detail"}, hits[0].Payload.Hierarchy)
	assert.Equal(t, "Notes", hits[0].Payload.PageTitle)
}

func TestVectorIndexer_EmbedderFailureIsReturned(t *testing.T) {
	emb := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(), fail: errors.New("boom")}
	vi, err := NewVectorIndexer(WithEmbedder(emb), WithVectorStore(newVectorStore(t)))
	require.NoError(t, err)
	defer func() { _ = vi.Close() }()

	err = vi.Index(context.Background(), testPage(t, "page-a", "- x\n"))
	assert.ErrorContains(t, err, "boom")
}
