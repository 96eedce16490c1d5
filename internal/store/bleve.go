package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// BleveTextIndex indexes one Bleve document per block.
type BleveTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var (
	_ TextIndex   = (*BleveTextIndex)(nil)
	_ PageCounter = (*BleveTextIndex)(nil)
)

// validateBleveIntegrity checks that an on-disk index has readable metadata.
// Returns nil if valid or absent.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveTextIndex opens or creates an index at path. An empty path creates
// an in-memory index. A corrupt index is cleared and recreated; the next
// import repopulates it.
func NewBleveTextIndex(path string) (*BleveTextIndex, error) {
	m := blockMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.IndexError("bleve", err)
		}
		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("text_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, amerrors.IndexError("bleve", removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, amerrors.IndexError("bleve", err)
	}

	return &BleveTextIndex{index: idx, path: path}, nil
}

func blockMapping() *mapping.IndexMappingImpl {
	pageID := bleve.NewKeywordFieldMapping()
	pageID.Analyzer = keyword.Name

	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	text.IncludeTermVectors = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("page_id", pageID)
	doc.AddFieldMappingsAt("page_title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("refs", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// pageDocIDs returns the ids of every document of a page.
func (b *BleveTextIndex) pageDocIDs(ctx context.Context, id domain.PageID) ([]string, error) {
	q := bleve.NewTermQuery(string(id))
	q.SetField("page_id")

	var ids []string
	const pageSize = 1000
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < pageSize {
			return ids, nil
		}
	}
}

// Index replaces the documents of page with one per block.
func (b *BleveTextIndex) Index(ctx context.Context, page *domain.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return amerrors.IndexError("bleve", fmt.Errorf("index is closed"))
	}

	stale, err := b.pageDocIDs(ctx, page.ID())
	if err != nil {
		return amerrors.IndexError("bleve", err)
	}

	batch := b.index.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	// Index after Delete so a block id present in both is kept.
	for _, doc := range documentsFor(page) {
		if err := batch.Index(doc.BlockID, doc); err != nil {
			return amerrors.IndexError("bleve", fmt.Errorf("index block %s: %w", doc.BlockID, err))
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return amerrors.IndexError("bleve", err)
	}
	return nil
}

// Delete removes every document of a page.
func (b *BleveTextIndex) Delete(ctx context.Context, id domain.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return amerrors.IndexError("bleve", fmt.Errorf("index is closed"))
	}

	ids, err := b.pageDocIDs(ctx, id)
	if err != nil {
		return amerrors.IndexError("bleve", err)
	}
	if len(ids) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for _, docID := range ids {
		batch.Delete(docID)
	}
	if err := b.index.Batch(batch); err != nil {
		return amerrors.IndexError("bleve", err)
	}
	return nil
}

// CountPage returns the number of documents of a page.
func (b *BleveTextIndex) CountPage(ctx context.Context, id domain.PageID) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, amerrors.IndexError("bleve", fmt.Errorf("index is closed"))
	}
	ids, err := b.pageDocIDs(ctx, id)
	if err != nil {
		return 0, amerrors.IndexError("bleve", err)
	}
	return len(ids), nil
}

// Search matches query against block content, page titles and references.
func (b *BleveTextIndex) Search(ctx context.Context, queryStr string, limit int) ([]*TextHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, amerrors.IndexError("bleve", fmt.Errorf("index is closed"))
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*TextHit{}, nil
	}

	content := bleve.NewMatchQuery(queryStr)
	content.SetField("content")
	refs := bleve.NewMatchQuery(queryStr)
	refs.SetField("refs")
	title := bleve.NewMatchQuery(queryStr)
	title.SetField("page_title")
	title.SetBoost(0.5)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(content, refs, title))
	req.Size = limit
	req.Fields = []string{"page_id"}
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, amerrors.IndexError("bleve", err)
	}

	hits := make([]*TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pageID, _ := h.Fields["page_id"].(string)
		hits = append(hits, &TextHit{
			BlockID:      domain.BlockID(h.ID),
			PageID:       domain.PageID(pageID),
			Score:        h.Score,
			MatchedTerms: matchedTerms(h),
		})
	}
	return hits, nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	set := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			set[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for term := range set {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of indexed blocks.
func (b *BleveTextIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index. Closing twice is a no-op.
func (b *BleveTextIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
