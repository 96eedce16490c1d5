package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byPath map[string]*Mapping
	byPage map[domain.PageID]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPath: make(map[string]*Mapping),
		byPage: make(map[domain.PageID]string),
	}
}

// UpsertMapping stores m, replacing any mapping at the same path. A mapping
// for the same page under another path is removed.
func (s *MemoryStore) UpsertMapping(_ context.Context, m *Mapping) error {
	if m == nil || m.Path == "" || m.PageID == "" {
		return amerrors.ValidationError("mapping requires path and page id", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byPath[m.Path]; ok && old.PageID != m.PageID {
		delete(s.byPage, old.PageID)
	}
	if otherPath, ok := s.byPage[m.PageID]; ok && otherPath != m.Path {
		delete(s.byPath, otherPath)
	}

	cp := *m
	s.byPath[m.Path] = &cp
	s.byPage[m.PageID] = m.Path
	return nil
}

func (s *MemoryStore) FindByPath(_ context.Context, path string) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byPath[path]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByOwner(_ context.Context, id domain.PageID) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if path, ok := s.byPage[id]; ok {
		cp := *s.byPath[path]
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindBySignature(_ context.Context, size int64, modifiedAt time.Time) ([]*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Mapping
	for _, m := range s.byPath {
		if m.Size == size && m.ModifiedAt.Equal(modifiedAt) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// RenameMapping moves the mapping at oldPath to newPath, keeping its page.
func (s *MemoryStore) RenameMapping(_ context.Context, oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byPath[oldPath]
	if !ok {
		return amerrors.NotFoundError("mapping", oldPath)
	}
	if _, taken := s.byPath[newPath]; taken {
		return amerrors.PersistenceError("rename target already mapped: "+newPath, nil)
	}
	delete(s.byPath, oldPath)
	m.Path = newPath
	s.byPath[newPath] = m
	s.byPage[m.PageID] = newPath
	return nil
}

func (s *MemoryStore) DeleteByPath(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byPath[path]
	if !ok {
		return false, nil
	}
	delete(s.byPath, path)
	delete(s.byPage, m.PageID)
	return true, nil
}

func (s *MemoryStore) DeleteByOwner(_ context.Context, id domain.PageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.byPage[id]
	if !ok {
		return false, nil
	}
	delete(s.byPage, id)
	delete(s.byPath, path)
	return true, nil
}

func (s *MemoryStore) AllMappings(_ context.Context) ([]*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Mapping, 0, len(s.byPath))
	for _, m := range s.byPath {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
