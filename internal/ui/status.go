package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/blockindex/internal/engine"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// StatusRenderer prints an engine status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints info as an aligned report.
func (r *StatusRenderer) Render(info *engine.Status) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	p("%s\n\n", r.styles.Title.Render("Index: "+info.Graph))
	p("  Pages:        %d\n", info.Pages)
	p("  Blocks:       %d\n", info.Blocks)
	p("  Files:        %d\n", info.Files)
	if info.Syncing {
		p("  Sync:         %s\n", r.styles.Accent.Render("running"))
	}
	if !info.LastModified.IsZero() {
		p("  Last change:  %s\n", formatTime(info.LastModified))
	}
	p("\n  Search:\n")
	p("    Text:       %s (%d docs)\n", info.TextBackend, info.TextDocs)
	if info.Embedder == "" {
		p("    Vectors:    %s\n", r.styles.Label.Render("disabled"))
	} else {
		p("    Vectors:    %s (%d chunks)\n", info.Embedder, info.Chunks)
	}
	if info.Degraded() {
		p("\n  Indexes:\n")
		for _, t := range info.Targets {
			state := r.styles.Accent.Render(t.State.String())
			if t.State != amerrors.BreakerClosed {
				state = r.styles.Warning.Render(t.State.String())
			}
			p("    %-11s %s", t.Name+":", state)
			if t.LastError != "" {
				p(" (%d failures: %s)", t.Failures, t.LastError)
			}
			p("\n")
		}
	}
	if info.DataDir != "" {
		p("\n  Storage (%s):\n", info.DataDir)
		p("    Metadata:   %s\n", FormatBytes(info.MetadataSize))
		p("    Text index: %s\n", FormatBytes(info.TextIndexSize))
		p("    Vectors:    %s\n", FormatBytes(info.VectorSize))
		p("    Total:      %s\n", FormatBytes(info.TotalSize()))
	}
	if info.Inconsistencies > 0 {
		p("\n  %s\n", r.styles.Warning.Render(fmt.Sprintf("⚠ %d inconsistencies, run sync --once to repair", info.Inconsistencies)))
	}
	return nil
}

// RenderJSON prints info as indented JSON.
func (r *StatusRenderer) RenderJSON(info *engine.Status) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*engine.Status
		TotalSize int64 `json:"total_size"`
	}{info, info.TotalSize()})
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes renders a size with a binary unit.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
