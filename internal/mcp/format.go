package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/query"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// FormatHits formats search hits as markdown. Each hit shows its outline
// path as a breadcrumb above the block text.
func FormatHits(q string, hits []engine.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No blocks found for \"%s\"", q)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", q)
	fmt.Fprintf(&sb, "Found %d block%s\n\n", len(hits), plural(len(hits)))

	for i, h := range hits {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n\n", i+1, h.Title, h.Score)
		if len(h.Path) > 0 {
			fmt.Fprintf(&sb, "_%s_\n\n", strings.Join(h.Path, " › "))
		}
		fmt.Fprintf(&sb, "%s\n\n", h.Content)
		if len(h.MatchedTerms) > 0 {
			fmt.Fprintf(&sb, "Matched: %s\n\n", strings.Join(h.MatchedTerms, ", "))
		}
	}
	return sb.String()
}

// FormatConnections formats the pages mentioning url as markdown.
func FormatConnections(url string, conns []store.PageConnection) string {
	if len(conns) == 0 {
		return fmt.Sprintf("No pages mention %s", url)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Pages mentioning %s\n\n", url)
	for _, c := range conns {
		fmt.Fprintf(&sb, "- **%s** (%d block%s)\n", c.Title, len(c.BlockIDs), plural(len(c.BlockIDs)))
	}
	return sb.String()
}

// FormatLinks formats a page's URLs with their surrounding references.
func FormatLinks(links *query.PageLinks) string {
	if len(links.Links) == 0 {
		return fmt.Sprintf("%s has no links", links.Title)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Links on %s\n\n", links.Title)
	for _, l := range links.Links {
		fmt.Fprintf(&sb, "- %s\n", l.URL)
		if len(l.AncestorRefs) > 0 {
			fmt.Fprintf(&sb, "  - under: %s\n", joinRefs(l.AncestorRefs))
		}
		if len(l.DescendantRefs) > 0 {
			fmt.Fprintf(&sb, "  - tagged: %s\n", joinRefs(l.DescendantRefs))
		}
	}
	return sb.String()
}

// FormatReferences formats a page's references with their surrounding URLs.
func FormatReferences(refs *query.PageReferences) string {
	if len(refs.References) == 0 {
		return fmt.Sprintf("%s has no references", refs.Title)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## References on %s\n\n", refs.Title)
	for _, r := range refs.References {
		fmt.Fprintf(&sb, "- %s\n", r.Reference)
		for _, u := range r.AncestorURLs {
			fmt.Fprintf(&sb, "  - under: %s\n", u)
		}
		for _, u := range r.DescendantURLs {
			fmt.Fprintf(&sb, "  - links: %s\n", u)
		}
	}
	return sb.String()
}

// FormatOutline renders a page back into an indented outline.
func FormatOutline(p *domain.Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.Title())
	depth := make(map[domain.BlockID]int, p.BlockCount())
	for _, b := range p.Blocks() {
		if parent, ok := b.Parent(); ok {
			depth[b.ID()] = depth[parent] + 1
		}
		sb.WriteString(strings.Repeat("  ", depth[b.ID()]))
		sb.WriteString("- ")
		sb.WriteString(b.Content())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// clampLimit restricts limit to [min, max], returning defaultVal if limit <= 0.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		limit = defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

func joinRefs(refs []domain.PageReference) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func stringsOf[T fmt.Stringer](items []T) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.String()
	}
	return out
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
