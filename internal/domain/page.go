package domain

import (
	"fmt"
	"slices"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// Page is the aggregate root of one outline file. It owns its blocks in an
// id-keyed arena and keeps top-level block ids in document order.
//
// A Page is not safe for concurrent mutation. Pages are built by one
// goroutine and only read afterwards.
type Page struct {
	id     PageID
	title  string
	blocks map[BlockID]*Block
	roots  []BlockID
}

// NewPage returns an empty page.
func NewPage(id PageID, title string) *Page {
	return &Page{id: id, title: title, blocks: make(map[BlockID]*Block)}
}

func (p *Page) ID() PageID      { return p.id }
func (p *Page) Title() string   { return p.title }
func (p *Page) BlockCount() int { return len(p.blocks) }

// RootIDs returns the top-level block ids in document order.
func (p *Page) RootIDs() []BlockID { return slices.Clone(p.roots) }

// Block looks up a block by id.
func (p *Page) Block(id BlockID) (*Block, bool) {
	b, ok := p.blocks[id]
	return b, ok
}

// AddBlock inserts b. A declared parent must already be in the page and sit
// exactly one level above b; a root must be at level 0.
func (p *Page) AddBlock(b *Block) error {
	if _, exists := p.blocks[b.id]; exists {
		return amerrors.ValidationError("duplicate block id "+string(b.id), nil)
	}

	parentID, hasParent := b.Parent()
	if !hasParent {
		if !b.indent.IsRoot() {
			return amerrors.MalformedHierarchyError(
				fmt.Sprintf("root block %s has indent %d", b.id, b.indent))
		}
		p.blocks[b.id] = b
		p.roots = append(p.roots, b.id)
		return nil
	}

	parent, ok := p.blocks[parentID]
	if !ok {
		return amerrors.MissingParentError(string(b.id), string(parentID))
	}
	if b.indent != parent.indent.Increment() {
		return amerrors.MalformedHierarchyError(
			fmt.Sprintf("block %s has indent %d under parent at indent %d", b.id, b.indent, parent.indent))
	}

	p.blocks[b.id] = b
	parent.AddChild(b.id)
	return nil
}

// RemoveBlock deletes a block and its whole subtree. It reports whether the
// block existed.
func (p *Page) RemoveBlock(id BlockID) bool {
	b, ok := p.blocks[id]
	if !ok {
		return false
	}

	doomed := append(p.collectDescendants(id, nil), b)
	for _, d := range doomed {
		delete(p.blocks, d.id)
	}

	if parentID, hasParent := b.Parent(); hasParent {
		if parent, ok := p.blocks[parentID]; ok {
			parent.removeChild(id)
		}
	} else {
		p.roots = slices.DeleteFunc(p.roots, func(r BlockID) bool { return r == id })
	}
	return true
}

// Ancestors returns the chain of parents of id, nearest first.
func (p *Page) Ancestors(id BlockID) ([]*Block, error) {
	b, ok := p.blocks[id]
	if !ok {
		return nil, amerrors.NotFoundError("block", string(id))
	}

	var out []*Block
	for parentID, has := b.Parent(); has; parentID, has = b.Parent() {
		parent, ok := p.blocks[parentID]
		if !ok {
			break
		}
		out = append(out, parent)
		b = parent
	}
	return out, nil
}

// Descendants returns every block below id in depth-first pre-order.
func (p *Page) Descendants(id BlockID) ([]*Block, error) {
	if _, ok := p.blocks[id]; !ok {
		return nil, amerrors.NotFoundError("block", string(id))
	}
	return p.collectDescendants(id, nil), nil
}

func (p *Page) collectDescendants(id BlockID, out []*Block) []*Block {
	for _, childID := range p.blocks[id].children {
		child, ok := p.blocks[childID]
		if !ok {
			continue
		}
		out = append(out, child)
		out = p.collectDescendants(childID, out)
	}
	return out
}

// HierarchyPath returns the blocks from the root down to and including id.
func (p *Page) HierarchyPath(id BlockID) ([]*Block, error) {
	ancestors, err := p.Ancestors(id)
	if err != nil {
		return nil, err
	}
	slices.Reverse(ancestors)
	return append(ancestors, p.blocks[id]), nil
}

// Blocks returns every block in document order.
func (p *Page) Blocks() []*Block {
	out := make([]*Block, 0, len(p.blocks))
	for _, rootID := range p.roots {
		root, ok := p.blocks[rootID]
		if !ok {
			continue
		}
		out = append(out, root)
		out = p.collectDescendants(rootID, out)
	}
	return out
}

// URLs returns every distinct URL on the page in document order.
func (p *Page) URLs() []URL {
	var out []URL
	for _, b := range p.Blocks() {
		for _, u := range b.urls {
			if !slices.Contains(out, u) {
				out = append(out, u)
			}
		}
	}
	return out
}

// References returns every distinct page reference in document order.
func (p *Page) References() []PageReference {
	var out []PageReference
	for _, b := range p.Blocks() {
		for _, r := range b.references {
			if !slices.Contains(out, r) {
				out = append(out, r)
			}
		}
	}
	return out
}
