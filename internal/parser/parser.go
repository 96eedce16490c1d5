// Package parser turns outline Markdown into ordered block tuples and pages.
//
// An outline file is a list of bullet lines. Nesting depth comes from leading
// whitespace: each tab or each pair of spaces is one level.
package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// Parser reads outline files. The zero value is ready to use.
type Parser struct {
	// Retry controls re-reads of files an editor is still writing.
	Retry amerrors.RetryConfig

	// IDs names blocks. Nil means domain.DeterministicBlockID.
	IDs domain.BlockIDFunc
}

// New returns a Parser with the default read retry policy.
func New() *Parser {
	return &Parser{Retry: amerrors.DefaultRetryConfig()}
}

// Parse splits text into parsed lines in document order. Blank lines and
// lines that hold only a bullet marker are skipped.
func Parse(text string) ([]domain.ParsedBlock, error) {
	if !utf8.ValidString(text) {
		return nil, amerrors.ValidationError("content is not valid UTF-8", nil)
	}

	var out []domain.ParsedBlock
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		content := stripBullet(line)
		if strings.TrimSpace(content) == "" {
			continue
		}

		out = append(out, domain.ParsedBlock{
			Indent:     indentOf(line),
			Content:    content,
			URLs:       extractURLs(content),
			References: extractReferences(content),
		})
	}
	return out, nil
}

// ParsePage parses text into a page.
func (p *Parser) ParsePage(id domain.PageID, title, text string) (*domain.Page, error) {
	lines, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return domain.BuildPage(id, title, lines, p.IDs)
}

// ReadFile reads path, retrying transient failures.
func (p *Parser) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return amerrors.RetryIf(ctx, p.Retry, func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, amerrors.FileAccessError(path, err)
		}
		return data, nil
	})
}

// ParseFile reads and parses path. The page title is the file name without
// its extension.
func (p *Parser) ParseFile(ctx context.Context, path string, id domain.PageID) (*domain.Page, error) {
	data, err := p.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.ParsePage(id, TitleFromPath(path), string(data))
}

// TitleFromPath returns the file stem of path.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func indentOf(line string) domain.IndentLevel {
	level := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\t':
			level++
		case ' ':
			if i+1 < len(line) && line[i+1] == ' ' {
				level++
				i++
			}
		default:
			return domain.IndentLevel(level)
		}
	}
	return domain.IndentLevel(level)
}

func stripBullet(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(trimmed, marker) {
			return trimmed[len(marker):]
		}
	}
	if trimmed != "" && strings.ContainsRune("-*+", rune(trimmed[0])) {
		return strings.TrimLeft(trimmed[1:], " \t")
	}
	return trimmed
}
