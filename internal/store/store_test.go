package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
	"github.com/Aman-CERP/blockindex/internal/parser"
)

const sampleOutline = `- Reading list
  - https://go.dev/doc/effective_go about [[Go]]
    - notes on #style
- Tools
  - https://go.dev/doc/effective_go again
`

func samplePage(t *testing.T, id domain.PageID, title, text string) *domain.Page {
	t.Helper()
	page, err := parser.New().ParsePage(id, title, text)
	require.NoError(t, err)
	return page
}

type structuredStore interface {
	PageRepository
	URLLookup
	ledger.Store
	Close() error
}

// forEachStore runs fn against both structured store implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s structuredStore)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite("", "")
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func TestStore_SaveAndFindByID_RoundTripsHierarchy(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()

		// Given: a saved page with nesting, URLs and references
		page := samplePage(t, "page-reading", "Reading", sampleOutline)
		require.NoError(t, s.Save(ctx, page))

		// When: loading it back
		got, err := s.FindByID(ctx, page.ID())
		require.NoError(t, err)
		require.NotNil(t, got)

		// Then: blocks, parents, URLs and references survive
		assert.Equal(t, "Reading", got.Title())
		assert.Equal(t, page.BlockCount(), got.BlockCount())
		assert.Equal(t, page.RootIDs(), got.RootIDs())
		for _, want := range page.Blocks() {
			b, ok := got.Block(want.ID())
			require.True(t, ok)
			assert.Equal(t, want.Content(), b.Content())
			assert.Equal(t, want.Indent(), b.Indent())
			assert.Equal(t, want.URLs(), b.URLs())
			assert.Equal(t, want.References(), b.References())
			wantParent, _ := want.Parent()
			gotParent, _ := b.Parent()
			assert.Equal(t, wantParent, gotParent)
		}
	})
}

func TestStore_FindByID_MissingReturnsNil(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		got, err := s.FindByID(context.Background(), "page-nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_Save_ReplacesBlocks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()

		// Given: a page saved twice with different content
		require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "A", sampleOutline)))
		require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "A2", "- only one\n")))

		// Then: only the second version remains
		got, err := s.FindByID(ctx, "page-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "A2", got.Title())
		assert.Equal(t, 1, got.BlockCount())

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_FindByTitleAndFindAll(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, samplePage(t, "page-b", "Beta", "- b\n")))
		require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "Alpha", "- a\n")))

		got, err := s.FindByTitle(ctx, "Beta")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.PageID("page-b"), got.ID())

		all, err := s.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Alpha", all[0].Title())
		assert.Equal(t, "Beta", all[1].Title())
	})
}

func TestStore_FindPagesByURL_GroupsBlocksPerPage(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, samplePage(t, "page-reading", "Reading", sampleOutline)))
		require.NoError(t, s.Save(ctx, samplePage(t, "page-other", "Other", "- nothing here\n")))

		conns, err := s.FindPagesByURL(ctx, "https://go.dev/doc/effective_go")
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, domain.PageID("page-reading"), conns[0].PageID)
		assert.Equal(t, "Reading", conns[0].Title)
		assert.Len(t, conns[0].BlockIDs, 2)
	})
}

func TestStore_DeletePage_CascadesToMapping(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()

		// Given: a page with a file mapping
		page := samplePage(t, "page-a", "A", "- a\n")
		require.NoError(t, s.Save(ctx, page))
		require.NoError(t, s.UpsertMapping(ctx, &ledger.Mapping{
			Path: "/g/pages/A.md", PageID: page.ID(), ModifiedAt: time.Unix(100, 0), Size: 4,
		}))

		// When: the page is deleted
		existed, err := s.Delete(ctx, page.ID())
		require.NoError(t, err)
		assert.True(t, existed)

		// Then: its mapping is gone too
		m, err := s.FindByPath(ctx, "/g/pages/A.md")
		require.NoError(t, err)
		assert.Nil(t, m)

		existed, err = s.Delete(ctx, page.ID())
		require.NoError(t, err)
		assert.False(t, existed)
	})
}

func TestStore_ResavingPage_KeepsMapping(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()
		page := samplePage(t, "page-a", "A", "- a\n")
		require.NoError(t, s.Save(ctx, page))
		require.NoError(t, s.UpsertMapping(ctx, &ledger.Mapping{
			Path: "/g/pages/A.md", PageID: page.ID(), ModifiedAt: time.Unix(100, 0), Size: 4,
		}))

		require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "A", "- a changed\n")))

		m, err := s.FindByOwner(ctx, page.ID())
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "/g/pages/A.md", m.Path)
	})
}

func TestStore_UpsertMapping_UnknownPageFails(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		err := s.UpsertMapping(context.Background(), &ledger.Mapping{
			Path: "/g/pages/X.md", PageID: "page-ghost", ModifiedAt: time.Unix(1, 0),
		})
		assert.Error(t, err)
	})
}

func TestStore_MappingLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s structuredStore) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "A", "- a\n")))
		mod := time.Unix(1700000000, 123456789).UTC()
		require.NoError(t, s.UpsertMapping(ctx, &ledger.Mapping{
			Path: "/g/pages/A.md", PageID: "page-a", ModifiedAt: mod, Size: 42, Checksum: "abc",
		}))

		// Signature lookup matches on size and exact mtime
		cands, err := s.FindBySignature(ctx, 42, mod)
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.True(t, mod.Equal(cands[0].ModifiedAt))
		assert.Equal(t, "abc", cands[0].Checksum)

		// Rename moves the mapping in place
		require.NoError(t, s.RenameMapping(ctx, "/g/pages/A.md", "/g/pages/B.md"))
		old, err := s.FindByPath(ctx, "/g/pages/A.md")
		require.NoError(t, err)
		assert.Nil(t, old)
		moved, err := s.FindByPath(ctx, "/g/pages/B.md")
		require.NoError(t, err)
		require.NotNil(t, moved)
		assert.Equal(t, domain.PageID("page-a"), moved.PageID)

		err = s.RenameMapping(ctx, "/g/pages/missing.md", "/g/pages/C.md")
		assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeNotFound))

		all, err := s.AllMappings(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		deleted, err := s.DeleteByPath(ctx, "/g/pages/B.md")
		require.NoError(t, err)
		assert.True(t, deleted)

		// The page itself is untouched
		page, err := s.FindByID(ctx, "page-a")
		require.NoError(t, err)
		assert.NotNil(t, page)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := OpenSQLite(path, DriverModernc)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, samplePage(t, "page-a", "A", sampleOutline)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, DriverModernc)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenSQLite_UnknownDriver(t *testing.T) {
	_, err := OpenSQLite("", "postgres")
	require.Error(t, err)
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeConfigInvalid))
}

func TestSQLiteStore_ClosedStoreRejectsCalls(t *testing.T) {
	s, err := OpenSQLite("", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Count(context.Background())
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodePersistence))
}
