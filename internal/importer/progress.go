// Package importer walks a graph directory once and brings every page file
// into the stores through the per-file pipeline.
package importer

import (
	"sync"
	"time"
)

// State is the lifecycle stage of an import run.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ProgressSnapshot is an immutable copy of import progress.
type ProgressSnapshot struct {
	State          string  `json:"state"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	CurrentFile    string  `json:"current_file,omitempty"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress tracks a running import. All methods are safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	state          State
	filesTotal     int
	filesProcessed int
	filesFailed    int
	currentFile    string
	startTime      time.Time
	errorMessage   string
}

// NewProgress returns an idle tracker.
func NewProgress() *Progress {
	return &Progress{state: StateIdle}
}

func (p *Progress) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDiscovering
	p.filesTotal = 0
	p.filesProcessed = 0
	p.filesFailed = 0
	p.currentFile = ""
	p.errorMessage = ""
	p.startTime = time.Now()
}

func (p *Progress) setTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateProcessing
	p.filesTotal = total
}

func (p *Progress) setCurrent(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentFile = path
}

// fileDone counts a finished file and returns the new processed count.
func (p *Progress) fileDone(failed bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filesProcessed++
	if failed {
		p.filesFailed++
	}
	return p.filesProcessed
}

func (p *Progress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentFile = ""
	if err != nil {
		p.state = StateFailed
		p.errorMessage = err.Error()
		return
	}
	p.state = StateCompleted
}

// State returns the current stage.
func (p *Progress) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns a copy of the current progress. The percentage saturates
// at 100 when there is nothing to do.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	progressPct := 100.0
	if p.filesTotal > 0 {
		progressPct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(time.Since(p.startTime).Seconds())
	}

	return ProgressSnapshot{
		State:          string(p.state),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		FilesFailed:    p.filesFailed,
		CurrentFile:    p.currentFile,
		ProgressPct:    progressPct,
		ElapsedSeconds: elapsed,
		ErrorMessage:   p.errorMessage,
	}
}
