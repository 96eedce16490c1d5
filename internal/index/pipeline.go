package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
	"github.com/Aman-CERP/blockindex/internal/parser"
	"github.com/Aman-CERP/blockindex/internal/store"
)

// Action is what processing a path did.
type Action int

const (
	ActionCreated Action = iota
	ActionUpdated
	ActionUnchanged
	ActionRenamed
	ActionDeleted
	ActionIgnored   // not a regular file
	ActionUntracked // removal of a path with no mapping
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	case ActionUnchanged:
		return "unchanged"
	case ActionRenamed:
		return "renamed"
	case ActionDeleted:
		return "deleted"
	case ActionIgnored:
		return "ignored"
	case ActionUntracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// Outcome describes one processed path.
type Outcome struct {
	Path   string
	PageID domain.PageID
	Action Action
	// Report is nil when no fan-out happened.
	Report *Report
}

// Pipeline runs the per-file flow shared by bulk import and live sync.
type Pipeline struct {
	repo   store.PageRepository
	ledger *ledger.Ledger
	coord  *Coordinator
	parser *parser.Parser
	lstat  func(string) (fs.FileInfo, error)
	logger *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithParser replaces the default parser.
func WithParser(p *parser.Parser) PipelineOption {
	return func(pl *Pipeline) { pl.parser = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(pl *Pipeline) { pl.logger = logger }
}

// NewPipeline wires a pipeline.
func NewPipeline(repo store.PageRepository, l *ledger.Ledger, coord *Coordinator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		repo:   repo,
		ledger: l,
		coord:  coord,
		parser: parser.New(),
		lstat:  os.Lstat,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ledger returns the change ledger.
func (p *Pipeline) Ledger() *ledger.Ledger { return p.ledger }

// Repository returns the structured store.
func (p *Pipeline) Repository() store.PageRepository { return p.repo }

// Coordinator returns the fan-out coordinator.
func (p *Pipeline) Coordinator() *Coordinator { return p.coord }

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Process brings the stores in line with the file at path.
//
// An up-to-date mapping skips the file, as does a newer file whose content
// checksum is unchanged. An unmapped file whose signature
// matches a vanished mapped file takes over that mapping. Otherwise the file
// is parsed, saved and fanned out. Fan-out failures are reported in the
// Outcome and do not fail the call; they leave the mapping pending, so the
// file is processed again on its next event or scan.
func (p *Pipeline) Process(ctx context.Context, path string) (*Outcome, error) {
	info, err := p.lstat(path)
	if err != nil {
		return nil, amerrors.FileAccessError(path, err)
	}
	if !info.Mode().IsRegular() {
		p.logger.Debug("file_ignored", slog.String("path", path), slog.String("mode", info.Mode().String()))
		return &Outcome{Path: path, Action: ActionIgnored}, nil
	}

	content, err := p.parser.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	sig := ledger.Signature{
		Size:       int64(len(content)),
		ModifiedAt: info.ModTime(),
		Checksum:   checksum(content),
	}

	unlock := p.ledger.Lock(path)
	defer unlock()

	mapping, err := p.ledger.FindByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if mapping != nil && !p.ledger.IsStale(mapping, sig) {
		return &Outcome{Path: path, PageID: mapping.PageID, Action: ActionUnchanged}, nil
	}
	if mapping != nil && mapping.Checksum != "" && mapping.Checksum == sig.Checksum {
		// Touched but not edited: move the recorded time forward only.
		touched := *mapping
		touched.ModifiedAt = sig.ModifiedAt
		if err := p.ledger.Upsert(ctx, &touched); err != nil {
			return nil, err
		}
		return &Outcome{Path: path, PageID: mapping.PageID, Action: ActionUnchanged}, nil
	}

	if mapping == nil {
		renamed, err := p.ledger.DetectRename(ctx, path, sig)
		if err != nil {
			return nil, err
		}
		if renamed != nil {
			return &Outcome{Path: path, PageID: renamed.PageID, Action: ActionRenamed}, nil
		}
	}

	created := mapping == nil
	pageID := domain.NewRandomPageID()
	if !created {
		pageID = mapping.PageID
	}

	page, err := p.parser.ParsePage(pageID, parser.TitleFromPath(path), string(content))
	if err != nil {
		return nil, err
	}
	if err := p.repo.Save(ctx, page); err != nil {
		return nil, err
	}

	// The mapping claims the page before fan-out but only records the
	// signature once every target holds it. A failed or interrupted fan-out
	// leaves the file stale, so the next pass indexes it again.
	current := ledger.Mapping{
		Path:       path,
		PageID:     pageID,
		ModifiedAt: sig.ModifiedAt,
		Size:       sig.Size,
		Checksum:   sig.Checksum,
	}
	if err := p.ledger.Upsert(ctx, current.Pending()); err != nil {
		return nil, err
	}

	outcome := &Outcome{Path: path, PageID: pageID, Action: ActionUpdated}
	if created {
		outcome.Action = ActionCreated
		outcome.Report = p.coord.Index(ctx, page)
	} else {
		outcome.Report = p.coord.Update(ctx, page)
	}

	if outcome.Report.OK() {
		if err := p.ledger.Upsert(ctx, &current); err != nil {
			return nil, err
		}
	} else {
		p.logger.Warn("file_pending_reindex",
			slog.String("path", path),
			slog.String("page_id", string(pageID)),
			slog.Int("failed_targets", len(outcome.Report.Failed())))
	}

	p.logger.Debug("file_processed",
		slog.String("path", path),
		slog.String("page_id", string(pageID)),
		slog.String("action", outcome.Action.String()),
		slog.Int("blocks", page.BlockCount()),
		slog.Bool("fanout_ok", outcome.Report.OK()))
	return outcome, nil
}

// Reindex replaces a stored page in every target without touching its file
// or mapping.
func (p *Pipeline) Reindex(ctx context.Context, id domain.PageID) (*Report, error) {
	page, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, amerrors.NotFoundError("page", string(id))
	}
	report := p.coord.Update(ctx, page)
	if !report.OK() {
		return report, report.Err()
	}
	return report, nil
}

// Flush persists targets that buffer writes in memory.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.coord.Flush(ctx)
}

// Remove deletes the page mapped to path from every store. A path with no
// mapping is a no-op.
func (p *Pipeline) Remove(ctx context.Context, path string) (*Outcome, error) {
	unlock := p.ledger.Lock(path)
	defer unlock()

	mapping, err := p.ledger.FindByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		p.logger.Debug("remove_untracked", slog.String("path", path))
		return &Outcome{Path: path, Action: ActionUntracked}, nil
	}

	if _, err := p.repo.Delete(ctx, mapping.PageID); err != nil {
		return nil, err
	}
	// Usually already gone through the cascade.
	if _, err := p.ledger.DeleteByPath(ctx, path); err != nil {
		return nil, err
	}

	report := p.coord.Delete(ctx, mapping.PageID)
	p.logger.Debug("file_removed",
		slog.String("path", path),
		slog.String("page_id", string(mapping.PageID)),
		slog.Bool("fanout_ok", report.OK()))
	return &Outcome{Path: path, PageID: mapping.PageID, Action: ActionDeleted, Report: report}, nil
}

// Purge removes a page that has no file: from the store, its mapping if
// any, and every target.
func (p *Pipeline) Purge(ctx context.Context, id domain.PageID) (*Report, error) {
	if _, err := p.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	if _, err := p.ledger.DeleteByOwner(ctx, id); err != nil {
		return nil, err
	}
	return p.coord.Delete(ctx, id), nil
}
