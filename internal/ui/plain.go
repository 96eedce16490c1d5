package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per event, for pipes and CI logs.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	tracker *ProgressTracker
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, tracker: NewProgressTracker()}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Apply(event)
	switch {
	case event.Total > 0 && event.CurrentFile != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.CurrentFile)
	case event.Total > 0 && event.Current == 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d files\n", event.Stage.Icon(), event.Total)
	case event.Total == 0 && event.Current == 0:
		_, _ = fmt.Fprintf(r.out, "[%s] no files\n", event.Stage.Icon())
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "ERROR: %s: %v\n", event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "ERROR: %v\n", event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.out, completionLine(stats))
	if stats.Err != nil && !stats.Cancelled {
		_, _ = fmt.Fprintf(r.out, "Import failed: %v\n", stats.Err)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

func completionLine(stats CompletionStats) string {
	verb := "Imported"
	if stats.Cancelled {
		verb = "Cancelled after"
	}
	line := fmt.Sprintf("%s %d/%d files in %s (%d unchanged",
		verb, stats.Succeeded, stats.Total, stats.Duration.Round(100*time.Millisecond), stats.Unchanged)
	if stats.Failed > 0 {
		line += fmt.Sprintf(", %d failed", stats.Failed)
	}
	if stats.Degraded > 0 {
		line += fmt.Sprintf(", %d text-only", stats.Degraded)
	}
	return line + ")"
}
