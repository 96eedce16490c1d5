package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Aman-CERP/blockindex/internal/domain"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanPage is a stored page that no mapping points to,
	// left behind when a save succeeded but the mapping write did not.
	InconsistencyOrphanPage InconsistencyType = iota
	// InconsistencyVanishedFile is a mapping whose file no longer exists.
	InconsistencyVanishedFile
	// InconsistencyDanglingMapping is a mapping whose page is not stored.
	InconsistencyDanglingMapping
	// InconsistencyIndexDrift is a stored page that a downstream index does
	// not hold as stored, for instance after a failed fan-out or a crash
	// before the vector index was saved.
	InconsistencyIndexDrift
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanPage:
		return "orphan_page"
	case InconsistencyVanishedFile:
		return "vanished_file"
	case InconsistencyDanglingMapping:
		return "dangling_mapping"
	case InconsistencyIndexDrift:
		return "index_drift"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type   InconsistencyType
	PageID domain.PageID
	Path   string
	// Targets names the drifted indexes of an InconsistencyIndexDrift.
	Targets []string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of pages verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Count returns the number of issues of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, issue := range r.Inconsistencies {
		if issue.Type == t {
			n++
		}
	}
	return n
}

// Only returns the issues of the given types.
func (r *CheckResult) Only(types ...InconsistencyType) []Inconsistency {
	var out []Inconsistency
	for _, issue := range r.Inconsistencies {
		for _, t := range types {
			if issue.Type == t {
				out = append(out, issue)
				break
			}
		}
	}
	return out
}

// ConsistencyChecker compares the structured store, the ledger, the file
// system and the downstream indexes.
type ConsistencyChecker struct {
	pipeline *Pipeline
	stat     func(string) (fs.FileInfo, error)
}

// NewConsistencyChecker creates a checker over the pipeline's stores.
func NewConsistencyChecker(p *Pipeline) *ConsistencyChecker {
	return &ConsistencyChecker{pipeline: p, stat: os.Stat}
}

// Check lists orphan pages, mappings of vanished files, mappings without a
// page, and mapped pages that some index does not hold as stored.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	pages, err := c.pipeline.Repository().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	mappings, err := c.pipeline.Ledger().All(ctx)
	if err != nil {
		return nil, err
	}

	stored := make(map[domain.PageID]bool, len(pages))
	for _, p := range pages {
		stored[p.ID()] = true
	}

	mapped := make(map[domain.PageID]bool, len(mappings))
	var issues []Inconsistency
	for _, m := range mappings {
		mapped[m.PageID] = true
		if !stored[m.PageID] {
			issues = append(issues, Inconsistency{Type: InconsistencyDanglingMapping, PageID: m.PageID, Path: m.Path})
			continue
		}
		if _, err := c.stat(m.Path); errors.Is(err, fs.ErrNotExist) {
			issues = append(issues, Inconsistency{Type: InconsistencyVanishedFile, PageID: m.PageID, Path: m.Path})
		}
	}

	coord := c.pipeline.Coordinator()
	for _, p := range pages {
		if !mapped[p.ID()] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanPage, PageID: p.ID()})
			continue
		}
		drifted, err := coord.Audit(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("audit page %s: %w", p.ID(), err)
		}
		if len(drifted) > 0 {
			issues = append(issues, Inconsistency{Type: InconsistencyIndexDrift, PageID: p.ID(), Targets: drifted})
		}
	}

	return &CheckResult{
		Checked:         len(pages),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair resolves issues: orphan pages and the pages of vanished files are
// removed everywhere, dangling mappings are dropped and their file indexed
// afresh, and drifted pages are re-sent to every index. Failures are logged
// and the remaining issues are still attempted. Targets that buffer writes
// are flushed at the end.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var errs []error
	for _, issue := range issues {
		var err error
		switch issue.Type {
		case InconsistencyOrphanPage:
			_, err = c.pipeline.Purge(ctx, issue.PageID)
		case InconsistencyVanishedFile:
			_, err = c.pipeline.Remove(ctx, issue.Path)
		case InconsistencyDanglingMapping:
			err = c.repairDangling(ctx, issue)
		case InconsistencyIndexDrift:
			_, err = c.pipeline.Reindex(ctx, issue.PageID)
		}
		if err != nil {
			slog.Warn("consistency_repair_failed",
				slog.String("type", issue.Type.String()),
				slog.String("page_id", string(issue.PageID)),
				slog.String("targets", strings.Join(issue.Targets, ",")),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if len(issues) > 0 {
		if err := c.pipeline.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		slog.Info("consistency_repaired",
			slog.Int("issues", len(issues)),
			slog.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

// repairDangling drops a mapping whose page is gone, clears the page from
// every index, and processes the file again if it still exists.
func (c *ConsistencyChecker) repairDangling(ctx context.Context, issue Inconsistency) error {
	l := c.pipeline.Ledger()
	unlock := l.Lock(issue.Path)
	_, err := l.DeleteByPath(ctx, issue.Path)
	unlock()
	if err != nil {
		return err
	}
	if report := c.pipeline.Coordinator().Delete(ctx, issue.PageID); !report.OK() {
		return report.Err()
	}
	if _, err := c.stat(issue.Path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	out, err := c.pipeline.Process(ctx, issue.Path)
	if err != nil {
		return err
	}
	return out.Report.Err()
}
