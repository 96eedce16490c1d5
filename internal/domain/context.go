package domain

// URLContext is a URL together with the page references that surround it:
// those on ancestor blocks (which section the link sits in) and those on
// descendant blocks (what the link is annotated with).
type URLContext struct {
	URL            URL             `json:"url"`
	BlockID        BlockID         `json:"block_id"`
	AncestorRefs   []PageReference `json:"ancestor_refs,omitempty"`
	DescendantRefs []PageReference `json:"descendant_refs,omitempty"`
}

// ReferenceContext is a page reference together with the URLs on its
// ancestor and descendant blocks.
type ReferenceContext struct {
	Reference      PageReference `json:"reference"`
	BlockID        BlockID       `json:"block_id"`
	AncestorURLs   []URL         `json:"ancestor_urls,omitempty"`
	DescendantURLs []URL         `json:"descendant_urls,omitempty"`
}

// URLsWithContext returns one entry per URL occurrence in document order.
func (p *Page) URLsWithContext() []URLContext {
	anc, desc := surroundings(p, (*Block).References)

	var out []URLContext
	for _, b := range p.Blocks() {
		for _, u := range b.urls {
			out = append(out, URLContext{
				URL:            u,
				BlockID:        b.id,
				AncestorRefs:   anc[b.id],
				DescendantRefs: desc[b.id],
			})
		}
	}
	return out
}

// ReferencesWithContext returns one entry per reference occurrence in
// document order.
func (p *Page) ReferencesWithContext() []ReferenceContext {
	anc, desc := surroundings(p, (*Block).URLs)

	var out []ReferenceContext
	for _, b := range p.Blocks() {
		for _, r := range b.references {
			out = append(out, ReferenceContext{
				Reference:      r,
				BlockID:        b.id,
				AncestorURLs:   anc[b.id],
				DescendantURLs: desc[b.id],
			})
		}
	}
	return out
}

// surroundings collects, for every block, the items of all its ancestors
// (nearest first) and of all its descendants (pre-order). One walk down
// extends the parent's ancestor list; the unwind concatenates child lists.
// Each block appears in at most depth lists, so the work is
// O(blocks x depth).
func surroundings[T any](p *Page, items func(*Block) []T) (map[BlockID][]T, map[BlockID][]T) {
	anc := make(map[BlockID][]T, len(p.blocks))
	desc := make(map[BlockID][]T, len(p.blocks))

	var walk func(id BlockID, above []T)
	walk = func(id BlockID, above []T) {
		b, ok := p.blocks[id]
		if !ok {
			return
		}
		anc[id] = above

		own := items(b)
		childAbove := make([]T, 0, len(own)+len(above))
		childAbove = append(childAbove, own...)
		childAbove = append(childAbove, above...)

		var below []T
		for _, childID := range b.children {
			child, ok := p.blocks[childID]
			if !ok {
				continue
			}
			walk(childID, childAbove)
			below = append(below, items(child)...)
			below = append(below, desc[childID]...)
		}
		desc[id] = below
	}

	for _, rootID := range p.roots {
		walk(rootID, nil)
	}
	return anc, desc
}
