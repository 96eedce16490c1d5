package parser

import (
	"strings"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

func isASCIIPunct(r rune) bool {
	return r < 0x80 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r)
}

func trimTrailingPunct(s string) string {
	return strings.TrimRightFunc(s, isASCIIPunct)
}

// extractURLs returns the http(s) words of content with trailing punctuation
// removed. Words that do not form a valid URL are dropped.
func extractURLs(content string) []domain.URL {
	var urls []domain.URL
	for _, word := range strings.Fields(content) {
		cleaned := trimTrailingPunct(word)
		if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
			continue
		}
		if u, err := domain.NewURL(cleaned); err == nil {
			urls = append(urls, u)
		}
	}
	return urls
}

// extractReferences returns [[links]] in order of appearance followed by
// #tags.
func extractReferences(content string) []domain.PageReference {
	var refs []domain.PageReference

	rest := content
	for {
		start := strings.Index(rest, "[[")
		if start < 0 {
			break
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "]]")
		if end < 0 {
			break
		}
		if ref, err := domain.NewLinkReference(rest[:end]); err == nil {
			refs = append(refs, ref)
		}
		rest = rest[end+2:]
	}

	for _, word := range strings.Fields(content) {
		if len(word) < 2 || word[0] != '#' || strings.HasPrefix(word, "#[[") {
			continue
		}
		if ref, err := domain.NewTagReference(trimTrailingPunct(word[1:])); err == nil {
			refs = append(refs, ref)
		}
	}
	return refs
}
