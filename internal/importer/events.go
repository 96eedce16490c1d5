package importer

import "github.com/Aman-CERP/blockindex/internal/index"

// Event is emitted while an import runs. The concrete types are Started,
// FileProcessed, Completed and Failed.
type Event interface {
	importEvent()
}

// Started is emitted once discovery has found total files.
type Started struct {
	Total int
}

// FileProcessed is emitted once per file. Current increases by one with
// every event of a run.
type FileProcessed struct {
	Path    string
	Current int
	Total   int
	Action  index.Action
	// Err is set when the file failed.
	Err error
}

// Completed ends a run that processed every file.
type Completed struct {
	Summary *Summary
}

// Failed ends a run that could not finish. Summary holds what was done
// before the failure and is nil when discovery failed.
type Failed struct {
	Err     error
	Summary *Summary
}

func (Started) importEvent()       {}
func (FileProcessed) importEvent() {}
func (Completed) importEvent()     {}
func (Failed) importEvent()        {}

// Listener receives events synchronously. It must not block for long.
type Listener func(Event)
