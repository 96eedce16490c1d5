package domain

import (
	"fmt"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// ParsedBlock is one outline line as produced by a parser: its depth, the
// text with the bullet stripped and the links found in it.
type ParsedBlock struct {
	Indent     IndentLevel
	Content    string
	URLs       []URL
	References []PageReference
}

// BlockIDFunc names the ordinal-th block of a page.
type BlockIDFunc func(page PageID, ordinal int) BlockID

// BuildPage assembles a page from parsed lines in document order. Each line
// becomes a child of the nearest preceding line one level shallower. A line
// more than one level deeper than its predecessor is rejected, never
// coerced. A nil idGen uses DeterministicBlockID.
func BuildPage(id PageID, title string, lines []ParsedBlock, idGen BlockIDFunc) (*Page, error) {
	if idGen == nil {
		idGen = DeterministicBlockID
	}

	page := NewPage(id, title)
	// stack[i] is the most recent block at indent i.
	var stack []BlockID

	for i, line := range lines {
		if line.Indent < 0 || int(line.Indent) > len(stack) {
			return nil, amerrors.MalformedHierarchyError(fmt.Sprintf(
				"line %d of %q jumps to indent %d after indent %d", i+1, title, line.Indent, len(stack)-1)).
				WithDetail("page_id", string(id))
		}

		blockID := idGen(id, i)
		stack = stack[:line.Indent]

		var block *Block
		if line.Indent.IsRoot() {
			block = NewRootBlock(blockID, line.Content)
		} else {
			block = NewChildBlock(blockID, line.Content, line.Indent, stack[len(stack)-1])
		}
		for _, u := range line.URLs {
			block.AddURL(u)
		}
		for _, r := range line.References {
			block.AddReference(r)
		}

		if err := page.AddBlock(block); err != nil {
			return nil, err
		}
		stack = append(stack, blockID)
	}

	return page, nil
}
