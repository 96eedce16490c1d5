package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// SQLiteTextIndex indexes blocks in an SQLite FTS5 table. Unlike Bleve it
// tolerates several processes opening the same file.
type SQLiteTextIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ TextIndex   = (*SQLiteTextIndex)(nil)
	_ PageCounter = (*SQLiteTextIndex)(nil)
)

// NewSQLiteTextIndex opens or creates an FTS5 index at path. An empty path
// creates an in-memory index.
func NewSQLiteTextIndex(path string) (*SQLiteTextIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.IndexError("fts", err)
		}
		dsn = path
	}

	db, err := sql.Open(DriverModernc, dsn)
	if err != nil {
		return nil, amerrors.IndexError("fts", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16384",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, amerrors.IndexError("fts", fmt.Errorf("set pragma: %w", err))
		}
	}

	// block_id and page_id are stored but not tokenized.
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS fts_blocks USING fts5(
			block_id UNINDEXED,
			page_id UNINDEXED,
			page_title,
			content,
			refs,
			tokenize = 'porter unicode61'
		)`); err != nil {
		_ = db.Close()
		return nil, amerrors.IndexError("fts", fmt.Errorf("create schema: %w", err))
	}

	return &SQLiteTextIndex{db: db, path: path}, nil
}

// Index replaces the rows of page in one transaction.
func (s *SQLiteTextIndex) Index(ctx context.Context, page *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return amerrors.IndexError("fts", fmt.Errorf("index is closed"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.IndexError("fts", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 tables have no REPLACE, so delete first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_blocks WHERE page_id = ?`, string(page.ID())); err != nil {
		return amerrors.IndexError("fts", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_blocks(block_id, page_id, page_title, content, refs) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return amerrors.IndexError("fts", err)
	}
	defer stmt.Close()

	for _, doc := range documentsFor(page) {
		if _, err := stmt.ExecContext(ctx, doc.BlockID, doc.PageID, doc.PageTitle, doc.Content, doc.Refs); err != nil {
			return amerrors.IndexError("fts", fmt.Errorf("index block %s: %w", doc.BlockID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return amerrors.IndexError("fts", err)
	}
	return nil
}

// Delete removes every row of a page.
func (s *SQLiteTextIndex) Delete(ctx context.Context, id domain.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return amerrors.IndexError("fts", fmt.Errorf("index is closed"))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_blocks WHERE page_id = ?`, string(id)); err != nil {
		return amerrors.IndexError("fts", err)
	}
	return nil
}

// CountPage returns the number of rows of a page.
func (s *SQLiteTextIndex) CountPage(ctx context.Context, id domain.PageID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, amerrors.IndexError("fts", fmt.Errorf("index is closed"))
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fts_blocks WHERE page_id = ?`, string(id)).Scan(&n); err != nil {
		return 0, amerrors.IndexError("fts", err)
	}
	return n, nil
}

// queryTerms splits q into bare words. Each is quoted so FTS5 operators in
// user input are treated as text.
func queryTerms(q string) []string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return words
}

// Search ranks blocks with FTS5's bm25(). Any term may match.
func (s *SQLiteTextIndex) Search(ctx context.Context, queryStr string, limit int) ([]*TextHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, amerrors.IndexError("fts", fmt.Errorf("index is closed"))
	}

	terms := queryTerms(queryStr)
	if len(terms) == 0 {
		return []*TextHit{}, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	// bm25() is lower-is-better; negate so higher scores rank first like Bleve.
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, page_id, bm25(fts_blocks) AS score
		FROM fts_blocks
		WHERE fts_blocks MATCH ?
		ORDER BY score
		LIMIT ?`, strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, amerrors.IndexError("fts", err)
	}
	defer rows.Close()

	var hits []*TextHit
	for rows.Next() {
		var blockID, pageID string
		var score float64
		if err := rows.Scan(&blockID, &pageID, &score); err != nil {
			return nil, amerrors.IndexError("fts", err)
		}
		hits = append(hits, &TextHit{
			BlockID:      domain.BlockID(blockID),
			PageID:       domain.PageID(pageID),
			Score:        -score,
			MatchedTerms: terms,
		})
	}
	return hits, rows.Err()
}

// Count returns the number of indexed blocks.
func (s *SQLiteTextIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fts_blocks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close checkpoints and closes the database.
func (s *SQLiteTextIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
