package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
)

// SQL drivers accepted by OpenSQLite.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// SchemaVersion is written to the meta table on creation.
const SchemaVersion = 1

// SQLiteStore is the structured store. Pages, their blocks and the file
// mappings live in one database so that deleting a page removes its mapping
// through a foreign key cascade.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ PageRepository = (*SQLiteStore)(nil)
	_ URLLookup      = (*SQLiteStore)(nil)
	_ ledger.Store   = (*SQLiteStore)(nil)
)

// OpenSQLite opens or creates the store at path. An empty path opens an
// in-memory database. An empty driver selects DriverModernc.
func OpenSQLite(path, driver string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, amerrors.ConfigError("unknown sqlite driver "+driver, nil).
			WithSuggestion("use sqlite (pure Go) or sqlite3 (cgo)")
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.PersistenceError("create store directory", err)
		}
		dsn = path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, amerrors.PersistenceError("open store", err)
	}

	// One connection: serializes writers and keeps per-connection pragmas
	// such as foreign_keys in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, amerrors.PersistenceError("set pragma", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, amerrors.PersistenceError("initialize schema", err)
	}

	slog.Debug("sqlite_store_opened",
		slog.String("path", path),
		slog.String("driver", driver))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_title ON pages(title);

	CREATE TABLE IF NOT EXISTS blocks (
		id        TEXT PRIMARY KEY,
		page_id   TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		parent_id TEXT,
		content   TEXT NOT NULL,
		indent    INTEGER NOT NULL,
		ordinal   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page_id, ordinal);

	CREATE TABLE IF NOT EXISTS block_urls (
		block_id TEXT NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url      TEXT NOT NULL,
		domain   TEXT NOT NULL,
		PRIMARY KEY (block_id, url)
	);
	CREATE INDEX IF NOT EXISTS idx_block_urls_url ON block_urls(url);
	CREATE INDEX IF NOT EXISTS idx_block_urls_domain ON block_urls(domain);

	CREATE TABLE IF NOT EXISTS block_references (
		block_id TEXT NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		text     TEXT NOT NULL,
		kind     INTEGER NOT NULL,
		PRIMARY KEY (block_id, text, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_block_references_text ON block_references(text);

	CREATE TABLE IF NOT EXISTS file_mappings (
		path        TEXT PRIMARY KEY,
		page_id     TEXT NOT NULL UNIQUE REFERENCES pages(id) ON DELETE CASCADE,
		modified_at INTEGER NOT NULL,
		size        INTEGER NOT NULL,
		checksum    TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_file_mappings_signature ON file_mappings(size, modified_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', ?)`,
		fmt.Sprint(SchemaVersion))
	return err
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return amerrors.PersistenceError("store is closed", nil)
	}
	return nil
}

// Save upserts the page row and replaces all of its blocks.
func (s *SQLiteStore) Save(ctx context.Context, page *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.PersistenceError("begin save", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Upsert rather than REPLACE: a REPLACE deletes the row first, which
	// would cascade to the file mapping.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages(id, title, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		string(page.ID()), page.Title(), time.Now().UnixNano()); err != nil {
		return amerrors.PersistenceError("save page "+string(page.ID()), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE page_id = ?`, string(page.ID())); err != nil {
		return amerrors.PersistenceError("clear blocks", err)
	}

	blockStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blocks(id, page_id, parent_id, content, indent, ordinal) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return amerrors.PersistenceError("prepare block insert", err)
	}
	defer blockStmt.Close()

	urlStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO block_urls(block_id, position, url, domain) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return amerrors.PersistenceError("prepare url insert", err)
	}
	defer urlStmt.Close()

	refStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO block_references(block_id, position, text, kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return amerrors.PersistenceError("prepare reference insert", err)
	}
	defer refStmt.Close()

	for ordinal, b := range page.Blocks() {
		var parent sql.NullString
		if p, ok := b.Parent(); ok {
			parent = sql.NullString{String: string(p), Valid: true}
		}
		if _, err := blockStmt.ExecContext(ctx, string(b.ID()), string(page.ID()), parent,
			b.Content(), int(b.Indent()), ordinal); err != nil {
			return amerrors.PersistenceError("insert block "+string(b.ID()), err)
		}
		for i, u := range b.URLs() {
			if _, err := urlStmt.ExecContext(ctx, string(b.ID()), i, u.String(), u.Domain()); err != nil {
				return amerrors.PersistenceError("insert url", err)
			}
		}
		for i, r := range b.References() {
			if _, err := refStmt.ExecContext(ctx, string(b.ID()), i, r.Text, int(r.Kind)); err != nil {
				return amerrors.PersistenceError("insert reference", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return amerrors.PersistenceError("commit page "+string(page.ID()), err)
	}
	return nil
}

// FindByID loads a page. It returns nil, nil when the page does not exist.
func (s *SQLiteStore) FindByID(ctx context.Context, id domain.PageID) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM pages WHERE id = ?`, string(id)).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, amerrors.PersistenceError("find page "+string(id), err)
	}
	return s.loadPage(ctx, id, title)
}

// FindByTitle loads the first page with the given title.
func (s *SQLiteStore) FindByTitle(ctx context.Context, title string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pages WHERE title = ? ORDER BY id LIMIT 1`, title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, amerrors.PersistenceError("find page titled "+title, err)
	}
	return s.loadPage(ctx, domain.PageID(id), title)
}

// FindAll loads every page ordered by title.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM pages ORDER BY title, id`)
	if err != nil {
		return nil, amerrors.PersistenceError("list pages", err)
	}
	type row struct{ id, title string }
	var heads []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title); err != nil {
			rows.Close()
			return nil, amerrors.PersistenceError("scan page", err)
		}
		heads = append(heads, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, amerrors.PersistenceError("list pages", err)
	}

	pages := make([]*domain.Page, 0, len(heads))
	for _, h := range heads {
		p, err := s.loadPage(ctx, domain.PageID(h.id), h.title)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// loadPage rebuilds a page from its rows. Blocks are read in document order
// so every parent is added before its children.
func (s *SQLiteStore) loadPage(ctx context.Context, id domain.PageID, title string) (*domain.Page, error) {
	urls := make(map[string][]domain.URL)
	urlRows, err := s.db.QueryContext(ctx, `
		SELECT u.block_id, u.url FROM block_urls u
		JOIN blocks b ON b.id = u.block_id
		WHERE b.page_id = ? ORDER BY b.ordinal, u.position`, string(id))
	if err != nil {
		return nil, amerrors.PersistenceError("load urls", err)
	}
	for urlRows.Next() {
		var blockID, raw string
		if err := urlRows.Scan(&blockID, &raw); err != nil {
			urlRows.Close()
			return nil, amerrors.PersistenceError("scan url", err)
		}
		if u, err := domain.NewURL(raw); err == nil {
			urls[blockID] = append(urls[blockID], u)
		}
	}
	urlRows.Close()

	refs := make(map[string][]domain.PageReference)
	refRows, err := s.db.QueryContext(ctx, `
		SELECT r.block_id, r.text, r.kind FROM block_references r
		JOIN blocks b ON b.id = r.block_id
		WHERE b.page_id = ? ORDER BY b.ordinal, r.position`, string(id))
	if err != nil {
		return nil, amerrors.PersistenceError("load references", err)
	}
	for refRows.Next() {
		var blockID, text string
		var kind int
		if err := refRows.Scan(&blockID, &text, &kind); err != nil {
			refRows.Close()
			return nil, amerrors.PersistenceError("scan reference", err)
		}
		refs[blockID] = append(refs[blockID], domain.PageReference{Text: text, Kind: domain.ReferenceKind(kind)})
	}
	refRows.Close()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, content, indent FROM blocks
		WHERE page_id = ? ORDER BY ordinal`, string(id))
	if err != nil {
		return nil, amerrors.PersistenceError("load blocks", err)
	}
	defer rows.Close()

	page := domain.NewPage(id, title)
	for rows.Next() {
		var blockID, content string
		var parent sql.NullString
		var indent int
		if err := rows.Scan(&blockID, &parent, &content, &indent); err != nil {
			return nil, amerrors.PersistenceError("scan block", err)
		}

		var b *domain.Block
		if parent.Valid {
			b = domain.NewChildBlock(domain.BlockID(blockID), content, domain.IndentLevel(indent), domain.BlockID(parent.String))
		} else {
			b = domain.NewRootBlock(domain.BlockID(blockID), content)
		}
		for _, u := range urls[blockID] {
			b.AddURL(u)
		}
		for _, r := range refs[blockID] {
			b.AddReference(r)
		}
		if err := page.AddBlock(b); err != nil {
			return nil, amerrors.PersistenceError("stored page "+string(id)+" is inconsistent", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.PersistenceError("load blocks", err)
	}
	return page, nil
}

// Delete removes a page. Blocks, URLs, references and the file mapping go
// with it.
func (s *SQLiteStore) Delete(ctx context.Context, id domain.PageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, string(id))
	if err != nil {
		return false, amerrors.PersistenceError("delete page "+string(id), err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Count returns the number of pages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, amerrors.PersistenceError("count pages", err)
	}
	return n, nil
}

// FindPagesByURL returns the pages whose blocks contain url exactly.
func (s *SQLiteStore) FindPagesByURL(ctx context.Context, url string) ([]PageConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, b.id FROM block_urls u
		JOIN blocks b ON b.id = u.block_id
		JOIN pages p ON p.id = b.page_id
		WHERE u.url = ?
		ORDER BY p.title, p.id, b.ordinal`, url)
	if err != nil {
		return nil, amerrors.PersistenceError("find pages by url", err)
	}
	defer rows.Close()

	var out []PageConnection
	for rows.Next() {
		var pageID, title, blockID string
		if err := rows.Scan(&pageID, &title, &blockID); err != nil {
			return nil, amerrors.PersistenceError("scan url match", err)
		}
		if n := len(out); n > 0 && out[n-1].PageID == domain.PageID(pageID) {
			out[n-1].BlockIDs = append(out[n-1].BlockIDs, domain.BlockID(blockID))
			continue
		}
		out = append(out, PageConnection{
			PageID:   domain.PageID(pageID),
			Title:    title,
			BlockIDs: []domain.BlockID{domain.BlockID(blockID)},
		})
	}
	return out, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
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
