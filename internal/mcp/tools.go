package mcp

// SearchBlocksInput defines the input schema for the search_blocks tool.
type SearchBlocksInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Mode  string `json:"mode,omitempty" jsonschema:"text (keyword, default) or vector (semantic)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default from search.max_results"`
}

// SearchBlocksOutput defines the output schema for the search_blocks tool.
type SearchBlocksOutput struct {
	Results []BlockResult `json:"results" jsonschema:"matching blocks, best first"`
}

// BlockResult is one matching block with the outline that leads to it.
type BlockResult struct {
	Page         string   `json:"page" jsonschema:"title of the page holding the block"`
	BlockID      string   `json:"block_id"`
	Content      string   `json:"content" jsonschema:"text of the matching block"`
	Path         []string `json:"path,omitempty" jsonschema:"contents of the ancestor blocks, outermost first"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this block"`
}

// PagesForURLInput defines the input schema for the pages_for_url tool.
type PagesForURLInput struct {
	URL string `json:"url" jsonschema:"the exact URL to look up"`
}

// PagesForURLOutput defines the output schema for the pages_for_url tool.
type PagesForURLOutput struct {
	URL   string      `json:"url"`
	Pages []PageMatch `json:"pages" jsonschema:"pages with at least one block containing the URL"`
}

// PageMatch is a page and the blocks on it that mention a URL.
type PageMatch struct {
	Title    string   `json:"title"`
	PageID   string   `json:"page_id"`
	BlockIDs []string `json:"block_ids"`
}

// PageInput names a page by its exact title.
type PageInput struct {
	Title string `json:"title" jsonschema:"page title, e.g. Reading List"`
}

// PageLinksOutput defines the output schema for the page_links tool.
type PageLinksOutput struct {
	Title string       `json:"title"`
	Links []LinkResult `json:"links"`
}

// LinkResult is a URL occurrence with the references around it.
type LinkResult struct {
	URL            string   `json:"url"`
	BlockID        string   `json:"block_id"`
	AncestorRefs   []string `json:"ancestor_refs,omitempty" jsonschema:"page references on enclosing blocks, nearest first"`
	DescendantRefs []string `json:"descendant_refs,omitempty" jsonschema:"page references on nested blocks"`
}

// PageReferencesOutput defines the output schema for the page_references tool.
type PageReferencesOutput struct {
	Title      string            `json:"title"`
	References []ReferenceResult `json:"references"`
}

// ReferenceResult is a reference occurrence with the URLs around it.
type ReferenceResult struct {
	Reference      string   `json:"reference" jsonschema:"the reference as written, e.g. [[Ideas]] or #later"`
	BlockID        string   `json:"block_id"`
	AncestorURLs   []string `json:"ancestor_urls,omitempty"`
	DescendantURLs []string `json:"descendant_urls,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Graph        string `json:"graph"`
	Pages        int    `json:"pages"`
	Blocks       int    `json:"blocks"`
	Files        int    `json:"files"`
	LastModified string `json:"last_modified,omitempty" jsonschema:"RFC3339 time of the newest indexed file"`
	Syncing      bool   `json:"syncing" jsonschema:"true while a live sync session keeps the index current"`

	TextBackend    string `json:"text_backend"`
	TextDocs       int    `json:"text_docs"`
	VectorsEnabled bool   `json:"vectors_enabled" jsonschema:"false means mode=vector searches are rejected"`
	Embedder       string `json:"embedder,omitempty"`
	Chunks         int    `json:"chunks"`

	SizeBytes       int64 `json:"size_bytes"`
	Inconsistencies int   `json:"inconsistencies"`
	// DegradedIndexes names the indexes whose circuit breaker is not closed.
	DegradedIndexes []string `json:"degraded_indexes,omitempty" jsonschema:"indexes skipped after repeated failures; their results may be stale"`
}
