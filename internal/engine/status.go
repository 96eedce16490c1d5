package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/index"
)

// Status describes an opened graph.
type Status struct {
	Graph        string    `json:"graph"`
	DataDir      string    `json:"data_dir,omitempty"`
	Pages        int       `json:"pages"`
	Blocks       int       `json:"blocks"`
	Files        int       `json:"files"`
	LastModified time.Time `json:"last_modified,omitzero"`
	Syncing      bool      `json:"syncing"`

	TextBackend string `json:"text_backend"`
	TextDocs    int    `json:"text_docs"`
	// Embedder is empty when vectors are disabled.
	Embedder string `json:"embedder,omitempty"`
	Chunks   int    `json:"chunks"`

	MetadataSize  int64 `json:"metadata_size"`
	TextIndexSize int64 `json:"text_index_size"`
	VectorSize    int64 `json:"vector_size"`

	// Inconsistencies counts every issue the consistency check found;
	// Issues breaks them down by type.
	Inconsistencies int            `json:"inconsistencies"`
	Issues          map[string]int `json:"issues,omitempty"`

	// Targets is the circuit breaker of each downstream index.
	Targets []amerrors.BreakerStatus `json:"targets"`
}

// Degraded reports whether some index is being skipped.
func (s *Status) Degraded() bool {
	for _, t := range s.Targets {
		if t.State != amerrors.BreakerClosed {
			return true
		}
	}
	return false
}

// TotalSize is the sum of the on-disk sizes.
func (s *Status) TotalSize() int64 {
	return s.MetadataSize + s.TextIndexSize + s.VectorSize
}

// Status collects counts, sizes and a consistency check.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	pages, err := e.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	mappings, err := e.pipeline.Ledger().All(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Graph:       e.root,
		DataDir:     e.dataDir,
		Pages:       len(pages),
		Files:       len(mappings),
		Syncing:     e.Syncing(),
		TextBackend: e.cfg.Search.Backend,
		TextDocs:    e.text.Count(),
	}
	for _, p := range pages {
		st.Blocks += p.BlockCount()
	}
	for _, m := range mappings {
		if m.ModifiedAt.After(st.LastModified) {
			st.LastModified = m.ModifiedAt
		}
	}
	if e.vectors != nil {
		st.Embedder = e.embedder.ModelName()
		st.Chunks = e.vectors.Count()
	}

	res, err := index.NewConsistencyChecker(e.pipeline).Check(ctx)
	if err != nil {
		return nil, err
	}
	st.Inconsistencies = len(res.Inconsistencies)
	for _, issue := range res.Inconsistencies {
		if st.Issues == nil {
			st.Issues = make(map[string]int)
		}
		st.Issues[issue.Type.String()]++
	}
	st.Targets = e.pipeline.Coordinator().Health()

	if e.dataDir != "" {
		st.MetadataSize, st.TextIndexSize, st.VectorSize = diskUsage(e.dataDir)
	}
	return st, nil
}

// diskUsage sums file sizes in dir by the store they belong to.
func diskUsage(dir string) (metadata, text, vectors int64) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		switch {
		case strings.HasPrefix(rel, PagesDBName):
			metadata += info.Size()
		case strings.HasPrefix(rel, TextIndexBase+"."):
			text += info.Size()
		case strings.HasPrefix(rel, VectorsName):
			vectors += info.Size()
		}
		return nil
	})
	return metadata, text, vectors
}
