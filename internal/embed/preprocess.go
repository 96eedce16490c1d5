package embed

import (
	"regexp"
	"strings"
)

var (
	pageRefPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	tagPattern     = regexp.MustCompile(`#(\w+)`)
	taskPattern    = regexp.MustCompile(`^(TODO|DONE|LATER|NOW|IN-PROGRESS)\s+`)
)

// contextDepth is how many trailing hierarchy entries go into the prefix.
const contextDepth = 2

// Preprocess prepares block content for embedding. It drops a leading task
// marker, unwraps [[links]] and #tags to their text, and prefixes the page
// title and the last two entries of hierarchy (root first, block last).
func Preprocess(content, title string, hierarchy []string) string {
	text := taskPattern.ReplaceAllString(content, "")
	text = pageRefPattern.ReplaceAllString(text, "$1")
	text = tagPattern.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)

	var parts []string
	if title != "" {
		parts = append(parts, "Page: "+title)
	}
	if n := len(hierarchy); n > 0 {
		parts = append(parts, "Context: "+strings.Join(hierarchy[max(0, n-contextDepth):], " > "))
	}
	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, ". ") + ". " + text
}
