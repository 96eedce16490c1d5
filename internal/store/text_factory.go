package store

import (
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// TextBackend selects the full-text index implementation.
type TextBackend string

const (
	// TextBackendBleve uses Bleve v2 (default). Single process only.
	TextBackendBleve TextBackend = "bleve"

	// TextBackendSQLite uses SQLite FTS5 with WAL for multi-process access.
	TextBackendSQLite TextBackend = "sqlite"
)

// NewTextIndex creates the index for backend. basePath has no extension;
// ".bleve" or ".fts.db" is appended. An empty basePath creates an in-memory
// index.
func NewTextIndex(backend, basePath string) (TextIndex, error) {
	switch TextBackend(backend) {
	case TextBackendBleve, "":
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveTextIndex(path)

	case TextBackendSQLite:
		var path string
		if basePath != "" {
			path = basePath + ".fts.db"
		}
		return NewSQLiteTextIndex(path)

	default:
		return nil, amerrors.ConfigError("unknown search backend: "+backend, nil).
			WithSuggestion("valid options: bleve, sqlite")
	}
}
