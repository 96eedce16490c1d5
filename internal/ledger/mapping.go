// Package ledger tracks which file produced which page.
//
// Every indexed file has one Mapping recording the page it produced and the
// file's modification time, size and content checksum at that point. The
// ledger answers "has this file changed since we indexed it" and "is this new
// path really an old file that moved".
package ledger

import (
	"context"
	"time"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

// Mapping links a file path to the page built from it.
type Mapping struct {
	Path       string
	PageID     domain.PageID
	ModifiedAt time.Time
	Size       int64
	// Checksum is the hex SHA-256 of the content, empty when unknown.
	Checksum string
}

// IsStale reports whether a file observed with modification time observed
// has changed since m was recorded.
func (m *Mapping) IsStale(observed time.Time) bool {
	return observed.After(m.ModifiedAt)
}

// pendingTime is the recorded time of a pending mapping. Every real file is
// newer.
var pendingTime = time.Unix(0, 0).UTC()

// Pending returns a copy of m that owns the page but records no content
// signature. The file is stale against it until a later pass confirms that
// every index holds the page.
func (m Mapping) Pending() *Mapping {
	m.ModifiedAt = pendingTime
	m.Checksum = ""
	return &m
}

// IsPending reports whether m was recorded by Pending.
func (m *Mapping) IsPending() bool {
	return m.Checksum == "" && m.ModifiedAt.Equal(pendingTime)
}

// Signature is the identity of file content used for rename detection.
type Signature struct {
	Size       int64
	ModifiedAt time.Time
	Checksum   string
}

// Store persists mappings. Lookups return nil, nil when nothing matches.
// Path is unique and so is PageID.
type Store interface {
	UpsertMapping(ctx context.Context, m *Mapping) error
	FindByPath(ctx context.Context, path string) (*Mapping, error)
	FindByOwner(ctx context.Context, id domain.PageID) (*Mapping, error)
	FindBySignature(ctx context.Context, size int64, modifiedAt time.Time) ([]*Mapping, error)
	RenameMapping(ctx context.Context, oldPath, newPath string) error
	DeleteByPath(ctx context.Context, path string) (bool, error)
	DeleteByOwner(ctx context.Context, id domain.PageID) (bool, error)
	AllMappings(ctx context.Context) ([]*Mapping, error)
}
