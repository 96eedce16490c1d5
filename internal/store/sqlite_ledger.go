package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
)

const mappingColumns = `path, page_id, modified_at, size, checksum`

func scanMapping(row interface{ Scan(...any) error }) (*ledger.Mapping, error) {
	var m ledger.Mapping
	var pageID string
	var modNanos int64
	if err := row.Scan(&m.Path, &pageID, &modNanos, &m.Size, &m.Checksum); err != nil {
		return nil, err
	}
	m.PageID = domain.PageID(pageID)
	m.ModifiedAt = time.Unix(0, modNanos).UTC()
	return &m, nil
}

// UpsertMapping records m. The page must already be saved. A mapping of the
// same page under another path is replaced.
func (s *SQLiteStore) UpsertMapping(ctx context.Context, m *ledger.Mapping) error {
	if m == nil || m.Path == "" || m.PageID == "" {
		return amerrors.ValidationError("mapping requires path and page id", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.PersistenceError("begin mapping upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_mappings WHERE page_id = ? AND path <> ?`, string(m.PageID), m.Path); err != nil {
		return amerrors.PersistenceError("clear previous mapping", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_mappings(`+mappingColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			page_id = excluded.page_id,
			modified_at = excluded.modified_at,
			size = excluded.size,
			checksum = excluded.checksum`,
		m.Path, string(m.PageID), m.ModifiedAt.UnixNano(), m.Size, m.Checksum); err != nil {
		return amerrors.PersistenceError("upsert mapping "+m.Path, err)
	}
	if err := tx.Commit(); err != nil {
		return amerrors.PersistenceError("commit mapping "+m.Path, err)
	}
	return nil
}

func (s *SQLiteStore) findOneMapping(ctx context.Context, where string, arg any) (*ledger.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	m, err := scanMapping(s.db.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM file_mappings WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, amerrors.PersistenceError("find mapping", err)
	}
	return m, nil
}

func (s *SQLiteStore) FindByPath(ctx context.Context, path string) (*ledger.Mapping, error) {
	return s.findOneMapping(ctx, `path = ?`, path)
}

func (s *SQLiteStore) FindByOwner(ctx context.Context, id domain.PageID) (*ledger.Mapping, error) {
	return s.findOneMapping(ctx, `page_id = ?`, string(id))
}

func (s *SQLiteStore) queryMappings(ctx context.Context, query string, args ...any) ([]*ledger.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, amerrors.PersistenceError("query mappings", err)
	}
	defer rows.Close()

	var out []*ledger.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, amerrors.PersistenceError("scan mapping", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindBySignature(ctx context.Context, size int64, modifiedAt time.Time) ([]*ledger.Mapping, error) {
	return s.queryMappings(ctx,
		`SELECT `+mappingColumns+` FROM file_mappings WHERE size = ? AND modified_at = ? ORDER BY path`,
		size, modifiedAt.UnixNano())
}

func (s *SQLiteStore) AllMappings(ctx context.Context) ([]*ledger.Mapping, error) {
	return s.queryMappings(ctx, `SELECT `+mappingColumns+` FROM file_mappings ORDER BY path`)
}

// RenameMapping moves a mapping to a new path in place.
func (s *SQLiteStore) RenameMapping(ctx context.Context, oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE file_mappings SET path = ? WHERE path = ?`, newPath, oldPath)
	if err != nil {
		return amerrors.PersistenceError("rename mapping "+oldPath, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return amerrors.NotFoundError("mapping", oldPath)
	}
	return nil
}

func (s *SQLiteStore) deleteMappings(ctx context.Context, where string, arg any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM file_mappings WHERE `+where, arg)
	if err != nil {
		return false, amerrors.PersistenceError("delete mapping", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) (bool, error) {
	return s.deleteMappings(ctx, `path = ?`, path)
}

func (s *SQLiteStore) DeleteByOwner(ctx context.Context, id domain.PageID) (bool, error) {
	return s.deleteMappings(ctx, `page_id = ?`, string(id))
}
