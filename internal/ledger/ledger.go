package ledger

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// StatFunc reports file information; os.Stat in production.
type StatFunc func(path string) (fs.FileInfo, error)

// Ledger is the change ledger: a Store plus staleness checks, rename
// detection and per-path exclusive sections.
type Ledger struct {
	store  Store
	locks  *KeyedMutex
	stat   StatFunc
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStat replaces the function used to check whether a mapped file still
// exists.
func WithStat(fn StatFunc) Option {
	return func(l *Ledger) { l.stat = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New wraps store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		locks:  NewKeyedMutex(),
		stat:   os.Stat,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// Lock enters the exclusive section for the given paths.
func (l *Ledger) Lock(paths ...string) (unlock func()) {
	return l.locks.Lock(paths...)
}

// Upsert records m. Last write wins per path.
func (l *Ledger) Upsert(ctx context.Context, m *Mapping) error {
	if err := l.store.UpsertMapping(ctx, m); err != nil {
		return wrapPersistence("upsert mapping "+m.Path, err)
	}
	return nil
}

func (l *Ledger) FindByPath(ctx context.Context, path string) (*Mapping, error) {
	m, err := l.store.FindByPath(ctx, path)
	if err != nil {
		return nil, wrapPersistence("find mapping "+path, err)
	}
	return m, nil
}

func (l *Ledger) FindByOwner(ctx context.Context, id domain.PageID) (*Mapping, error) {
	m, err := l.store.FindByOwner(ctx, id)
	if err != nil {
		return nil, wrapPersistence("find mapping for "+string(id), err)
	}
	return m, nil
}

// IsStale reports whether observed is newer than the recorded time.
func (l *Ledger) IsStale(m *Mapping, observed Signature) bool {
	return m.IsStale(observed.ModifiedAt)
}

// DeleteByPath removes the mapping at path. Deleting a missing mapping is
// not an error.
func (l *Ledger) DeleteByPath(ctx context.Context, path string) (bool, error) {
	ok, err := l.store.DeleteByPath(ctx, path)
	if err != nil {
		return false, wrapPersistence("delete mapping "+path, err)
	}
	return ok, nil
}

// DeleteByOwner removes the mapping of a page.
func (l *Ledger) DeleteByOwner(ctx context.Context, id domain.PageID) (bool, error) {
	ok, err := l.store.DeleteByOwner(ctx, id)
	if err != nil {
		return false, wrapPersistence("delete mapping for "+string(id), err)
	}
	return ok, nil
}

// All returns every mapping sorted by path.
func (l *Ledger) All(ctx context.Context) ([]*Mapping, error) {
	ms, err := l.store.AllMappings(ctx)
	if err != nil {
		return nil, wrapPersistence("list mappings", err)
	}
	return ms, nil
}

// DetectRename looks for a mapping whose file vanished and whose recorded
// size and modification time equal sig. When both sides carry a checksum
// they must match too. A single candidate is moved to path in place, keeping
// its page, and returned. No candidate or several candidates yield nil.
//
// The caller must hold the lock for path.
func (l *Ledger) DetectRename(ctx context.Context, path string, sig Signature) (*Mapping, error) {
	candidates, err := l.store.FindBySignature(ctx, sig.Size, sig.ModifiedAt)
	if err != nil {
		return nil, wrapPersistence("find rename candidates", err)
	}

	var match *Mapping
	for _, c := range candidates {
		if c.Path == path {
			continue
		}
		if c.Checksum != "" && sig.Checksum != "" && c.Checksum != sig.Checksum {
			continue
		}
		if _, statErr := l.stat(c.Path); !errors.Is(statErr, fs.ErrNotExist) {
			continue
		}
		if match != nil {
			l.logger.Debug("rename_ambiguous",
				slog.String("path", path),
				slog.String("candidate", c.Path),
				slog.String("other", match.Path))
			return nil, nil
		}
		match = c
	}
	if match == nil {
		return nil, nil
	}

	unlock := l.locks.Lock(match.Path)
	defer unlock()

	// The old path may have been claimed or removed since the lookup.
	current, err := l.store.FindByPath(ctx, match.Path)
	if err != nil {
		return nil, wrapPersistence("recheck rename candidate", err)
	}
	if current == nil || current.PageID != match.PageID {
		return nil, nil
	}

	if err := l.store.RenameMapping(ctx, match.Path, path); err != nil {
		return nil, wrapPersistence("rename mapping "+match.Path, err)
	}

	l.logger.Info("file_renamed",
		slog.String("from", match.Path),
		slog.String("to", path),
		slog.String("page_id", string(match.PageID)))

	renamed := *match
	renamed.Path = path
	return &renamed, nil
}

func wrapPersistence(msg string, err error) error {
	var ee *amerrors.EngineError
	if errors.As(err, &ee) {
		return err
	}
	return amerrors.PersistenceError(msg, err)
}
