package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// LockFileName is created inside the data directory.
const LockFileName = "blockindex.lock"

// DataDirLock guards a data directory against a second writer process.
// Bleve and the HNSW graph files are single-writer.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock for dir. Nothing is acquired yet.
func NewDataDirLock(dir string) *DataDirLock {
	path := filepath.Join(dir, LockFileName)
	return &DataDirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. A lock held by another process
// yields an ERR_303_FILE_LOCKED error.
func (l *DataDirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return amerrors.FileAccessError(filepath.Dir(l.path), err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return amerrors.New(amerrors.ErrCodeFileLocked, "failed to acquire data directory lock", err).
			WithDetail("path", l.path)
	}
	if !acquired {
		return amerrors.New(amerrors.ErrCodeFileLocked,
			fmt.Sprintf("data directory is in use by another process (%s)", l.path), nil).
			WithDetail("path", l.path).
			WithSuggestion("stop the other blockindex process (sync or serve) first")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Calling it on an unlocked DataDirLock is a no-op.
func (l *DataDirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// Locked reports whether this DataDirLock holds the lock.
func (l *DataDirLock) Locked() bool {
	return l.locked
}
