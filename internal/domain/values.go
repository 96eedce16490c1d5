package domain

import (
	"strings"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// URL is an absolute http or https URL found in block content.
type URL struct {
	raw    string
	domain string
}

// NewURL validates raw and derives its domain.
func NewURL(raw string) (URL, error) {
	var rest string
	switch {
	case strings.HasPrefix(raw, "https://"):
		rest = strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		rest = strings.TrimPrefix(raw, "http://")
	default:
		return URL{}, amerrors.ValidationError("url must start with http:// or https://: "+raw, nil)
	}

	domain := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		domain = rest[:i]
	}
	if domain == "" || strings.ContainsAny(raw, " \t\n") {
		return URL{}, amerrors.ValidationError("url has no host: "+raw, nil)
	}

	return URL{raw: raw, domain: domain}, nil
}

// MustURL is NewURL for literals known to be valid. It panics otherwise.
func MustURL(raw string) URL {
	u, err := NewURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the URL as written.
func (u URL) String() string { return u.raw }

// MarshalText encodes the URL as written, so JSON output shows a string.
func (u URL) MarshalText() ([]byte, error) { return []byte(u.raw), nil }

// Domain returns the host part between "://" and the next "/".
func (u URL) Domain() string { return u.domain }

// ReferenceKind distinguishes [[links]] from #tags.
type ReferenceKind int

const (
	// KindLink is a [[wiki link]] reference.
	KindLink ReferenceKind = iota
	// KindTag is a #tag reference.
	KindTag
)

// String returns the kind name.
func (k ReferenceKind) String() string {
	if k == KindTag {
		return "tag"
	}
	return "link"
}

// PageReference is a link or tag pointing at another page by title.
// Two references are equal when text and kind match.
type PageReference struct {
	Text string
	Kind ReferenceKind
}

// NewLinkReference returns a [[text]] reference.
func NewLinkReference(text string) (PageReference, error) {
	return newReference(text, KindLink)
}

// NewTagReference returns a #text reference.
func NewTagReference(text string) (PageReference, error) {
	return newReference(text, KindTag)
}

func newReference(text string, kind ReferenceKind) (PageReference, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return PageReference{}, amerrors.ValidationError("page reference must not be empty", nil)
	}
	return PageReference{Text: text, Kind: kind}, nil
}

// MarshalText encodes the reference in outline form.
func (r PageReference) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// String renders the reference the way it appears in an outline.
func (r PageReference) String() string {
	if r.Kind == KindTag {
		return "#" + r.Text
	}
	return "[[" + r.Text + "]]"
}

// IndentLevel is the depth of a block. Roots are at level 0.
type IndentLevel int

// RootIndent is the level of top-level blocks.
const RootIndent IndentLevel = 0

// Increment returns the next deeper level.
func (l IndentLevel) Increment() IndentLevel { return l + 1 }

// Decrement returns the next shallower level, saturating at the root.
func (l IndentLevel) Decrement() IndentLevel {
	if l <= RootIndent {
		return RootIndent
	}
	return l - 1
}

// IsRoot reports whether l is the top level.
func (l IndentLevel) IsRoot() bool { return l == RootIndent }
