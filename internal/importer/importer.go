package importer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/index"
	"github.com/Aman-CERP/blockindex/internal/layout"
)

// DefaultConcurrency bounds in-flight files when no semaphore is shared.
const DefaultConcurrency = 4

// Importer runs bulk imports. One run at a time per Importer.
type Importer struct {
	pipeline  *index.Pipeline
	sem       *semaphore.Weighted
	logger    *slog.Logger
	listeners []Listener
	progress  *Progress
	discover  func(ctx context.Context, root string) ([]string, error)

	runMu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithSemaphore shares a bound on in-flight files with other workers, such
// as the live synchronizer.
func WithSemaphore(sem *semaphore.Weighted) Option {
	return func(i *Importer) { i.sem = sem }
}

// WithConcurrency sets a private bound of n in-flight files.
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		if n < 1 {
			n = 1
		}
		i.sem = semaphore.NewWeighted(int64(n))
	}
}

// WithListener adds an event listener.
func WithListener(l Listener) Option {
	return func(i *Importer) { i.listeners = append(i.listeners, l) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

// New creates an importer over pipeline.
func New(pipeline *index.Pipeline, opts ...Option) *Importer {
	i := &Importer{
		pipeline: pipeline,
		logger:   slog.Default(),
		progress: NewProgress(),
		discover: layout.Discover,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.sem == nil {
		i.sem = semaphore.NewWeighted(DefaultConcurrency)
	}
	return i
}

// Progress returns the tracker of the current or last run.
func (i *Importer) Progress() *Progress { return i.progress }

func (i *Importer) emit(e Event) {
	for _, l := range i.listeners {
		l(e)
	}
}

// ImportDirectory imports every page file under root.
//
// A file that fails is recorded in the summary and never stops the run.
// Only discovery failure or cancellation end the run as Failed. On
// cancellation no new file is started, files already running finish, and
// the partial summary is returned with the context error.
func (i *Importer) ImportDirectory(ctx context.Context, root string) (*Summary, error) {
	if !i.runMu.TryLock() {
		return nil, amerrors.OrchestrationError("an import is already running", nil)
	}
	defer i.runMu.Unlock()

	start := time.Now()
	i.progress.begin()

	files, err := i.discover(ctx, root)
	if err != nil {
		if amerrors.GetCategory(err) != amerrors.CategoryOrchestration {
			err = amerrors.OrchestrationError("discover "+root, err)
		}
		i.logger.Error("import_discovery_failed", append([]any{slog.String("root", root)}, amerrors.LogArgs(err)...)...)
		i.progress.finish(err)
		i.emit(Failed{Err: err})
		return nil, err
	}

	i.progress.setTotal(len(files))
	i.emit(Started{Total: len(files)})
	i.logger.Info("import_started", slog.String("root", root), slog.Int("files", len(files)))

	summary := &Summary{Total: len(files)}
	var mu sync.Mutex
	// Files already started finish even if ctx is cancelled.
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := i.sem.Acquire(ctx, 1); err != nil {
			break
		}
		// Acquire may win a race against cancellation.
		if ctx.Err() != nil {
			i.sem.Release(1)
			break
		}
		g.Go(func() error {
			defer i.sem.Release(1)
			i.progress.setCurrent(path)
			out, err := i.pipeline.Process(detached, path)

			mu.Lock()
			defer mu.Unlock()
			i.record(summary, path, out, err)
			return nil
		})
	}
	_ = g.Wait()
	i.flush(detached, root)

	sort.Slice(summary.Failures, func(a, b int) bool {
		return summary.Failures[a].Path < summary.Failures[b].Path
	})
	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		summary.Cancelled = true
		i.logger.Warn("import_cancelled",
			slog.String("root", root),
			slog.Int("processed", summary.Succeeded+summary.Failed),
			slog.Int("total", summary.Total))
		i.progress.finish(err)
		i.emit(Failed{Err: err, Summary: summary})
		return summary, err
	}

	i.logger.Info("import_completed",
		slog.String("root", root),
		slog.Int("total", summary.Total),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Duration("duration", summary.Duration))
	i.progress.finish(nil)
	i.emit(Completed{Summary: summary})
	return summary, nil
}

// flush persists the indexes that buffer writes, so a crash after the run
// does not lose what it indexed. A failure is logged; the pages are saved
// and the next open repairs the drift.
func (i *Importer) flush(ctx context.Context, root string) {
	if err := i.pipeline.Flush(ctx); err != nil {
		i.logger.Warn("import_flush_failed", append([]any{slog.String("root", root)}, amerrors.LogArgs(err)...)...)
	}
}

// record accounts for one file. The caller holds the summary lock, which
// also orders FileProcessed events.
func (i *Importer) record(summary *Summary, path string, out *index.Outcome, err error) {
	ev := FileProcessed{Path: path, Total: summary.Total, Err: err}
	if err != nil {
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{Path: path, Reason: err.Error()})
		i.logger.Warn("import_file_failed", append([]any{slog.String("path", path)}, amerrors.LogArgs(err)...)...)
	} else {
		summary.Succeeded++
		ev.Action = out.Action
		switch out.Action {
		case index.ActionUnchanged, index.ActionIgnored:
			summary.Unchanged++
		}
		if out.Report != nil && !out.Report.OK() {
			summary.Degraded++
		}
	}
	ev.Current = i.progress.fileDone(err != nil)
	i.emit(ev)
}
