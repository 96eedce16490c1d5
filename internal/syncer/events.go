package syncer

import "github.com/Aman-CERP/blockindex/internal/domain"

// Event is emitted as the synchronizer applies changes. The concrete types
// are FileCreated, FileUpdated, FileDeleted and SyncError.
type Event interface {
	syncEvent()
}

// FileCreated reports a new page for Path.
type FileCreated struct {
	Path   string
	PageID domain.PageID
}

// FileUpdated reports a re-indexed page, or a page that moved to Path when
// Renamed is set.
type FileUpdated struct {
	Path    string
	PageID  domain.PageID
	Renamed bool
}

// FileDeleted reports a page removed with its file.
type FileDeleted struct {
	Path   string
	PageID domain.PageID
}

// SyncError reports a failure. Path is empty for watcher errors.
type SyncError struct {
	Path string
	Err  error
}

func (FileCreated) syncEvent() {}
func (FileUpdated) syncEvent() {}
func (FileDeleted) syncEvent() {}
func (SyncError) syncEvent()   {}

// Listener receives events. It may be called from several goroutines at
// once and must not block for long.
type Listener func(Event)
