package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/embed"
	"github.com/Aman-CERP/blockindex/internal/store"
)

func TestNewSearchers_RequireDependencies(t *testing.T) {
	_, err := NewTextSearcher()
	assert.ErrorIs(t, err, ErrNilTextStore)

	_, err = NewVectorSearcher(WithSearchEmbedder(embed.NewStaticEmbedder()))
	assert.ErrorIs(t, err, ErrNilVectorStore)

	vs, err := store.NewHNSWVectorIndex(store.VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	_, err = NewVectorSearcher(WithSearchVectorStore(vs))
	assert.ErrorIs(t, err, ErrNilEmbedder)
}

func TestTextSearcher_Search(t *testing.T) {
	ctx := context.Background()
	ts, err := store.NewBleveTextIndex("")
	require.NoError(t, err)
	defer func() { _ = ts.Close() }()

	page := domain.NewPage("page-a", "A")
	require.NoError(t, page.AddBlock(domain.NewRootBlock("block-1", "kubernetes operators")))
	require.NoError(t, page.AddBlock(domain.NewRootBlock("block-2", "garden planning")))
	require.NoError(t, ts.Index(ctx, page))

	s, err := NewTextSearcher(WithTextStore(ts))
	require.NoError(t, err)

	results, err := s.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.BlockID("block-1"), results[0].BlockID)
	assert.Equal(t, domain.PageID("page-a"), results[0].PageID)
}

func TestVectorSearcher_CollapsesChunksPerBlock(t *testing.T) {
	ctx := context.Background()
	emb := embed.NewStaticEmbedder()
	vs, err := store.NewHNSWVectorIndex(store.VectorConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	// Given: two chunks of one block and one chunk of another
	add := func(chunk domain.ChunkID, block domain.BlockID, text string) {
		v, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, vs.Upsert(ctx, chunk, v, store.ChunkPayload{PageID: "page-a", BlockID: block, Text: text}))
	}
	add("b1_chunk_0", "b1", "distributed consensus with raft")
	add("b1_chunk_1", "b1", "raft leader election")
	add("b2_chunk_0", "b2", "baking sourdough bread")

	s, err := NewVectorSearcher(WithSearchEmbedder(emb), WithSearchVectorStore(vs))
	require.NoError(t, err)

	// When: searching with room for every chunk
	results, err := s.Search(ctx, "raft consensus", 10)
	require.NoError(t, err)

	// Then: each block appears once, best first
	require.Len(t, results, 2)
	assert.Equal(t, domain.BlockID("b1"), results[0].BlockID)
	assert.Equal(t, domain.BlockID("b2"), results[1].BlockID)
}
