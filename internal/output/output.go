// Package output prints command results: status lines with icons, search
// hits, URL lookups and page links, either as text or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/query"
	"github.com/Aman-CERP/blockindex/internal/store"
	"github.com/Aman-CERP/blockindex/internal/syncer"
)

// Writer formats command output.
type Writer struct {
	out  io.Writer
	json bool
}

// New creates a text Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// NewJSON creates a Writer whose result printers emit indented JSON.
// Status lines are still text.
func NewJSON(out io.Writer) *Writer {
	return &Writer{out: out, json: true}
}

// Status prints msg after icon, or indented when icon is empty.
// Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✅", fmt.Sprintf(format, args...))
}

// Warningf prints a warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠️ ", fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status("❌", fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Hits prints search results with their ancestor path.
func (w *Writer) Hits(query string, hits []engine.Hit) error {
	if w.json {
		return w.JSON(hits)
	}
	if len(hits) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return nil
	}
	w.Statusf("🔍", "%d results for %q", len(hits), query)
	for i, h := range hits {
		w.Newline()
		_, _ = fmt.Fprintf(w.out, "%d. %s  (%.3f)\n", i+1, h.Title, h.Score)
		for depth, p := range h.Path {
			_, _ = fmt.Fprintf(w.out, "   %s%s\n", strings.Repeat("  ", depth), truncate(p, 80))
		}
		_, _ = fmt.Fprintf(w.out, "   %s%s\n", strings.Repeat("  ", len(h.Path)), h.Content)
	}
	return nil
}

// Connections prints the pages that mention url.
func (w *Writer) Connections(url string, conns []store.PageConnection) error {
	if w.json {
		return w.JSON(conns)
	}
	if len(conns) == 0 {
		w.Statusf("🔗", "No pages mention %s", url)
		return nil
	}
	w.Statusf("🔗", "%d pages mention %s", len(conns), url)
	for _, c := range conns {
		w.Status("", fmt.Sprintf("%s (%d blocks)", c.Title, len(c.BlockIDs)))
	}
	return nil
}

// Links prints a page's URLs with the references around them.
func (w *Writer) Links(links *query.PageLinks) error {
	if w.json {
		return w.JSON(links)
	}
	w.Statusf("📄", "%s: %d links", links.Title, len(links.Links))
	for _, l := range links.Links {
		line := l.URL.String()
		if ctx := refs(l.AncestorRefs, l.DescendantRefs); ctx != "" {
			line += "  " + ctx
		}
		w.Status("", line)
	}
	return nil
}

// References prints a page's references with the URLs around them.
func (w *Writer) References(refsOut *query.PageReferences) error {
	if w.json {
		return w.JSON(refsOut)
	}
	w.Statusf("📄", "%s: %d references", refsOut.Title, len(refsOut.References))
	for _, r := range refsOut.References {
		line := r.Reference.String()
		if n := len(r.AncestorURLs) + len(r.DescendantURLs); n > 0 {
			line += fmt.Sprintf("  (%d urls nearby)", n)
		}
		w.Status("", line)
	}
	return nil
}

// SyncSummary prints the result of a full reconciliation.
func (w *Writer) SyncSummary(s *syncer.SyncSummary) error {
	if w.json {
		return w.JSON(s)
	}
	if !s.Changed() && s.Errors == 0 {
		w.Successf("Up to date (%d files)", s.Unchanged)
		return nil
	}
	w.Successf("Synced: %d created, %d updated, %d renamed, %d deleted, %d unchanged",
		s.Created, s.Updated, s.Renamed, s.Deleted, s.Unchanged)
	for _, f := range s.Failures {
		w.Errorf("%s: %s", f.Path, f.Reason)
	}
	return nil
}

func refs(groups ...[]domain.PageReference) string {
	var parts []string
	for _, g := range groups {
		for _, r := range g {
			parts = append(parts, r.String())
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
