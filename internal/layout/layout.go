// Package layout knows which files of a graph directory hold pages.
//
// A graph root contains a pages/ and a journals/ directory of Markdown
// outline files. Everything else under the root, including the application's
// own logseq/ metadata directory, is ignored.
package layout

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

const (
	// PagesDir holds named pages.
	PagesDir = "pages"
	// JournalsDir holds daily journal pages.
	JournalsDir = "journals"

	// MarkdownExt is the extension of page files.
	MarkdownExt = ".md"

	metadataDir = "logseq"
)

// ContentDirs are the sub-directories of a graph root that hold pages.
var ContentDirs = []string{PagesDir, JournalsDir}

// SkipDir reports whether a directory with this base name is never scanned.
func SkipDir(name string) bool {
	return (strings.HasPrefix(name, ".") && name != "." && name != "..") || name == metadataDir
}

// IsEligible reports whether path is a page file of the graph at root:
// a .md file below pages/ or journals/ with no hidden or skipped component.
func IsEligible(root, path string) bool {
	if !strings.EqualFold(filepath.Ext(path), MarkdownExt) {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return false
	}
	if parts[0] != PagesDir && parts[0] != JournalsDir {
		return false
	}
	for _, p := range parts[1:] {
		if SkipDir(p) {
			return false
		}
	}
	return true
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidRoot, "invalid graph root "+root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidRoot, "graph root not accessible: "+abs, err).
			WithSuggestion("pass the directory that contains pages/ and journals/")
	}
	if !info.IsDir() {
		return "", amerrors.New(amerrors.ErrCodeInvalidRoot, "graph root is not a directory: "+abs, nil)
	}
	return abs, nil
}

// Discover returns the absolute paths of every page file under root, sorted.
// Missing pages/ or journals/ directories are not an error. Unreadable
// sub-directories are skipped.
func Discover(ctx context.Context, root string) ([]string, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, dir := range ContentDirs {
		base := filepath.Join(abs, dir)
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			continue
		}

		walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if d != nil && d.IsDir() && path != base {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				if path != base && SkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && IsEligible(abs, path) {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, amerrors.OrchestrationError("discover "+base, walkErr)
		}
	}

	sort.Strings(files)
	return files, nil
}
