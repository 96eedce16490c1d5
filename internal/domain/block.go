package domain

import "slices"

// Block is one outline line of a page. Its parent and children are stored as
// ids; the owning Page resolves them.
type Block struct {
	id         BlockID
	content    string
	indent     IndentLevel
	parent     BlockID
	children   []BlockID
	urls       []URL
	references []PageReference
}

// NewRootBlock returns a top-level block.
func NewRootBlock(id BlockID, content string) *Block {
	return &Block{id: id, content: content, indent: RootIndent}
}

// NewChildBlock returns a block nested under parent at the given level.
func NewChildBlock(id BlockID, content string, indent IndentLevel, parent BlockID) *Block {
	return &Block{id: id, content: content, indent: indent, parent: parent}
}

func (b *Block) ID() BlockID         { return b.id }
func (b *Block) Content() string     { return b.content }
func (b *Block) Indent() IndentLevel { return b.indent }

// Parent returns the parent id and whether the block has one.
func (b *Block) Parent() (BlockID, bool) { return b.parent, b.parent != "" }

// IsRoot reports whether the block has no parent.
func (b *Block) IsRoot() bool { return b.parent == "" }

// Children returns the child ids in document order.
func (b *Block) Children() []BlockID { return slices.Clone(b.children) }

// URLs returns the URLs found in the block's content.
func (b *Block) URLs() []URL { return slices.Clone(b.urls) }

// References returns the page references found in the block's content.
func (b *Block) References() []PageReference { return slices.Clone(b.references) }

// AddChild appends a child id. Adding the same child twice is a no-op.
func (b *Block) AddChild(id BlockID) {
	if !slices.Contains(b.children, id) {
		b.children = append(b.children, id)
	}
}

func (b *Block) removeChild(id BlockID) {
	b.children = slices.DeleteFunc(b.children, func(c BlockID) bool { return c == id })
}

// AddURL records a URL. Duplicates are ignored.
func (b *Block) AddURL(u URL) {
	if !slices.Contains(b.urls, u) {
		b.urls = append(b.urls, u)
	}
}

// AddReference records a page reference. Duplicates are ignored.
func (b *Block) AddReference(r PageReference) {
	if !slices.Contains(b.references, r) {
		b.references = append(b.references, r)
	}
}
