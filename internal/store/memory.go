package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
)

// MemoryStore is an in-process structured store with the same cascade as
// SQLiteStore: deleting a page deletes its file mapping.
type MemoryStore struct {
	*ledger.MemoryStore

	mu    sync.RWMutex
	pages map[domain.PageID]*domain.Page
}

var (
	_ PageRepository = (*MemoryStore)(nil)
	_ URLLookup      = (*MemoryStore)(nil)
	_ ledger.Store   = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MemoryStore: ledger.NewMemoryStore(),
		pages:       make(map[domain.PageID]*domain.Page),
	}
}

// clonePage copies a page so callers cannot mutate stored state.
func clonePage(p *domain.Page) *domain.Page {
	out := domain.NewPage(p.ID(), p.Title())
	for _, b := range p.Blocks() {
		var nb *domain.Block
		if parent, ok := b.Parent(); ok {
			nb = domain.NewChildBlock(b.ID(), b.Content(), b.Indent(), parent)
		} else {
			nb = domain.NewRootBlock(b.ID(), b.Content())
		}
		for _, u := range b.URLs() {
			nb.AddURL(u)
		}
		for _, r := range b.References() {
			nb.AddReference(r)
		}
		// Blocks come from a valid page in document order.
		_ = out.AddBlock(nb)
	}
	return out
}

func (s *MemoryStore) Save(_ context.Context, page *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.ID()] = clonePage(page)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id domain.PageID) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pages[id]; ok {
		return clonePage(p), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByTitle(_ context.Context, title string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Page
	for _, p := range s.pages {
		if p.Title() == title && (found == nil || p.ID() < found.ID()) {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	return clonePage(found), nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, clonePage(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title() != out[j].Title() {
			return out[i].Title() < out[j].Title()
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}

// Delete removes the page and cascades to its mapping.
func (s *MemoryStore) Delete(ctx context.Context, id domain.PageID) (bool, error) {
	s.mu.Lock()
	_, ok := s.pages[id]
	delete(s.pages, id)
	s.mu.Unlock()

	if _, err := s.MemoryStore.DeleteByOwner(ctx, id); err != nil {
		return ok, err
	}
	return ok, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages), nil
}

// UpsertMapping requires the page to exist, like the foreign key in SQLite.
func (s *MemoryStore) UpsertMapping(ctx context.Context, m *ledger.Mapping) error {
	if m != nil {
		s.mu.RLock()
		_, ok := s.pages[m.PageID]
		s.mu.RUnlock()
		if !ok {
			return amerrors.PersistenceError("mapping references unknown page "+string(m.PageID), nil)
		}
	}
	return s.MemoryStore.UpsertMapping(ctx, m)
}

func (s *MemoryStore) FindPagesByURL(_ context.Context, url string) ([]PageConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PageConnection
	for _, p := range s.pages {
		var conn *PageConnection
		for _, b := range p.Blocks() {
			for _, u := range b.URLs() {
				if u.String() != url {
					continue
				}
				if conn == nil {
					conn = &PageConnection{PageID: p.ID(), Title: p.Title()}
				}
				conn.BlockIDs = append(conn.BlockIDs, b.ID())
				break
			}
		}
		if conn != nil {
			out = append(out, *conn)
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

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
