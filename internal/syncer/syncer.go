// Package syncer keeps the stores in line with a graph directory while it is
// being edited.
//
// A Handle consumes debounced watcher batches. Events for one path are
// applied in arrival order; different paths run concurrently under the
// shared in-flight bound. Within a batch, deletes wait for the batch's
// creates and modifies, so a renamed file claims the mapping of its old path
// before that path is removed. When the watcher reports dropped batches the
// whole root is rescanned.
package syncer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/importer"
	"github.com/Aman-CERP/blockindex/internal/index"
	"github.com/Aman-CERP/blockindex/internal/layout"
	"github.com/Aman-CERP/blockindex/internal/watcher"
)

// Source delivers batches of file events. *watcher.HybridWatcher is the
// production Source.
type Source interface {
	Start(ctx context.Context, root string) error
	Ready() <-chan struct{}
	Stop() error
	Events() <-chan []watcher.FileEvent
	Errors() <-chan error
}

// overflowReporter is a Source that drops batches when its buffer is full.
// *watcher.HybridWatcher is one.
type overflowReporter interface {
	DroppedBatches() uint64
}

var _ overflowReporter = (*watcher.HybridWatcher)(nil)

// DefaultOverflowCheck is how often a Handle looks for dropped batches.
const DefaultOverflowCheck = 2 * time.Second

// SourceFactory creates a fresh Source for each Start.
type SourceFactory func() (Source, error)

// Syncer applies file changes through the per-file pipeline.
type Syncer struct {
	pipeline  *index.Pipeline
	sem       *semaphore.Weighted
	logger    *slog.Logger
	listeners []Listener
	newSource SourceFactory
	reconcile bool
	overflow  time.Duration
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSemaphore shares the in-flight bound with bulk import.
func WithSemaphore(sem *semaphore.Weighted) Option {
	return func(s *Syncer) { s.sem = sem }
}

// WithListener adds an event listener.
func WithListener(l Listener) Option {
	return func(s *Syncer) { s.listeners = append(s.listeners, l) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// WithReconcileOnStart controls the full scan run before watching.
// Default true.
func WithReconcileOnStart(enabled bool) Option {
	return func(s *Syncer) { s.reconcile = enabled }
}

// WithOverflowCheck sets how often a running Handle asks its source for
// dropped batches. When the count grows the root is rescanned. Zero
// disables the check.
func WithOverflowCheck(d time.Duration) Option {
	return func(s *Syncer) { s.overflow = d }
}

// WithWatcherOptions configures the default watcher.
func WithWatcherOptions(opts watcher.Options) Option {
	return func(s *Syncer) {
		s.newSource = func() (Source, error) { return watcher.NewHybridWatcher(opts) }
	}
}

// WithSource replaces the watcher, mainly for tests.
func WithSource(f SourceFactory) Option {
	return func(s *Syncer) { s.newSource = f }
}

// New creates a synchronizer over pipeline.
func New(pipeline *index.Pipeline, opts ...Option) *Syncer {
	s := &Syncer{
		pipeline:  pipeline,
		logger:    slog.Default(),
		reconcile: true,
		overflow:  DefaultOverflowCheck,
		newSource: func() (Source, error) { return watcher.NewHybridWatcher(watcher.DefaultOptions()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sem == nil {
		s.sem = semaphore.NewWeighted(importer.DefaultConcurrency)
	}
	return s
}

func (s *Syncer) emit(e Event) {
	for _, l := range s.listeners {
		l(e)
	}
}

// PathState is what the synchronizer last did with a path.
type PathState int

const (
	PathUnknown PathState = iota
	PathTracked
	PathDeleted
)

func (p PathState) String() string {
	switch p {
	case PathTracked:
		return "tracked"
	case PathDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Handle is one running synchronization. Handles are independent of each
// other.
type Handle struct {
	syncer *Syncer
	root   string
	source Source
	queues *pathQueues
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	states   map[string]PathState
	startErr error

	stopOnce sync.Once
}

// Start begins watching root. It returns once the watch is in place and,
// when enabled, the initial reconciliation has run.
func (s *Syncer) Start(ctx context.Context, root string) (*Handle, error) {
	abs, err := layout.ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	src, err := s.newSource()
	if err != nil {
		return nil, amerrors.OrchestrationError("create file watcher", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		syncer: s,
		root:   abs,
		source: src,
		queues: newPathQueues(s.sem),
		cancel: cancel,
		done:   make(chan struct{}),
		states: make(map[string]PathState),
	}

	startErr := make(chan error, 1)
	go func() {
		err := src.Start(runCtx, abs)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.mu.Lock()
			h.startErr = err
			h.mu.Unlock()
		}
		startErr <- err
	}()

	select {
	case <-src.Ready():
	case err := <-startErr:
		cancel()
		_ = src.Stop()
		if err == nil {
			err = context.Canceled
		}
		return nil, amerrors.OrchestrationError("start file watcher", err)
	}

	if s.reconcile {
		summary, err := s.SyncOnce(runCtx, abs)
		if err != nil {
			cancel()
			_ = src.Stop()
			return nil, err
		}
		s.logger.Info("sync_reconciled",
			slog.String("root", abs),
			slog.Int("created", summary.Created),
			slog.Int("updated", summary.Updated),
			slog.Int("renamed", summary.Renamed),
			slog.Int("deleted", summary.Deleted),
			slog.Int("errors", summary.Errors))
	}

	go h.loop(runCtx)
	s.logger.Info("sync_started", slog.String("root", abs))
	return h, nil
}

// Root returns the watched directory.
func (h *Handle) Root() string { return h.root }

// PathState returns the last known state of path.
func (h *Handle) PathState(path string) PathState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.states[path]
}

func (h *Handle) setState(path string, st PathState) {
	h.mu.Lock()
	h.states[path] = st
	h.mu.Unlock()
}

// Stop stops watching and waits for changes already being applied.
// Queued changes that have not started are dropped. Safe to call more than
// once.
func (h *Handle) Stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		_ = h.source.Stop()
		<-h.done
		h.queues.wait()
		h.syncer.logger.Info("sync_stopped", slog.String("root", h.root))
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.startErr
}

func (h *Handle) loop(ctx context.Context) {
	defer close(h.done)
	events := h.source.Events()
	errs := h.source.Errors()

	var tick <-chan time.Time
	reporter, ok := h.source.(overflowReporter)
	var dropped uint64
	if ok && h.syncer.overflow > 0 {
		dropped = reporter.DroppedBatches()
		ticker := time.NewTicker(h.syncer.overflow)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if n := reporter.DroppedBatches(); n > dropped {
				h.rescan(ctx, n-dropped)
				dropped = n
			}
		case batch, ok := <-events:
			if !ok {
				return
			}
			h.handleBatch(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			h.syncer.logger.Warn("watcher_error", slog.String("error", err.Error()))
			h.syncer.emit(SyncError{Err: err})
		}
	}
}

// rescan reconciles the whole root after the source lost batches.
func (h *Handle) rescan(ctx context.Context, lost uint64) {
	s := h.syncer
	s.logger.Warn("sync_events_dropped",
		slog.String("root", h.root),
		slog.Uint64("batches", lost))
	summary, err := s.SyncOnce(ctx, h.root)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(h.root, err)
		}
		return
	}
	s.logger.Info("sync_rescanned",
		slog.String("root", h.root),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("deleted", summary.Deleted),
		slog.Int("errors", summary.Errors))
}

// handleBatch queues the batch's creates and modifies, waits for them, then
// queues its deletes. Once the deletes are applied the indexes are flushed.
func (h *Handle) handleBatch(ctx context.Context, batch []watcher.FileEvent) {
	var deletes []watcher.FileEvent
	var upserts sync.WaitGroup
	for _, ev := range batch {
		if ev.Operation == watcher.OpDelete {
			deletes = append(deletes, ev)
			continue
		}
		upserts.Add(1)
		h.queues.submit(ctx, ev.Path, func(ctx context.Context) {
			h.upsert(ctx, ev.Path)
		}, upserts.Done)
	}
	upserts.Wait()

	var removals sync.WaitGroup
	for _, ev := range deletes {
		removals.Add(1)
		h.queues.submit(ctx, ev.Path, func(ctx context.Context) {
			if ev.IsDir {
				h.removeDir(ctx, ev.Path)
				return
			}
			h.remove(ctx, ev.Path)
		}, removals.Done)
	}
	removals.Wait()
	h.syncer.flush(context.WithoutCancel(ctx))
}

func (h *Handle) upsert(ctx context.Context, path string) {
	out, err := h.syncer.upsert(ctx, path)
	if err != nil || out == nil {
		return
	}
	switch out.Action {
	case index.ActionDeleted, index.ActionUntracked:
		h.setState(path, PathDeleted)
	case index.ActionIgnored:
	default:
		h.setState(path, PathTracked)
	}
}

func (h *Handle) remove(ctx context.Context, path string) {
	// An editor may have replaced the file before the delete ran.
	if _, err := os.Lstat(path); err == nil {
		h.upsert(ctx, path)
		return
	}
	if out, err := h.syncer.remove(ctx, path); err == nil && out.Action == index.ActionDeleted {
		h.setState(path, PathDeleted)
	}
}

// removeDir removes every mapped file below a directory that disappeared.
func (h *Handle) removeDir(ctx context.Context, dir string) {
	mappings, err := h.syncer.pipeline.Ledger().All(ctx)
	if err != nil {
		h.syncer.fail(dir, err)
		return
	}
	prefix := dir + string(filepath.Separator)
	for _, m := range mappings {
		if strings.HasPrefix(m.Path, prefix) {
			h.remove(ctx, m.Path)
		}
	}
}

// upsert processes path and reports the outcome. A file that vanished
// before it could be read is removed instead.
func (s *Syncer) upsert(ctx context.Context, path string) (*index.Outcome, error) {
	out, err := s.pipeline.Process(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.remove(ctx, path)
		}
		s.fail(path, err)
		return nil, err
	}

	switch out.Action {
	case index.ActionCreated:
		s.emit(FileCreated{Path: path, PageID: out.PageID})
	case index.ActionUpdated:
		s.emit(FileUpdated{Path: path, PageID: out.PageID})
	case index.ActionRenamed:
		s.emit(FileUpdated{Path: path, PageID: out.PageID, Renamed: true})
	default:
		s.logger.Debug("sync_skipped", slog.String("path", path), slog.String("action", out.Action.String()))
	}
	s.logFanout(out)
	return out, nil
}

func (s *Syncer) remove(ctx context.Context, path string) (*index.Outcome, error) {
	out, err := s.pipeline.Remove(ctx, path)
	if err != nil {
		s.fail(path, err)
		return nil, err
	}
	if out.Action == index.ActionDeleted {
		s.emit(FileDeleted{Path: path, PageID: out.PageID})
	} else {
		s.logger.Debug("sync_delete_untracked", slog.String("path", path))
	}
	s.logFanout(out)
	return out, nil
}

// flush persists the indexes that buffer writes.
func (s *Syncer) flush(ctx context.Context) {
	if err := s.pipeline.Flush(ctx); err != nil {
		s.logger.Warn("sync_flush_failed", amerrors.LogArgs(err)...)
		s.emit(SyncError{Err: err})
	}
}

func (s *Syncer) fail(path string, err error) {
	s.logger.Warn("sync_file_failed", append([]any{slog.String("path", path)}, amerrors.LogArgs(err)...)...)
	s.emit(SyncError{Path: path, Err: err})
}

func (s *Syncer) logFanout(out *index.Outcome) {
	if out.Report == nil || out.Report.OK() {
		return
	}
	for _, res := range out.Report.Failed() {
		s.logger.Warn("sync_index_degraded",
			slog.String("path", out.Path),
			slog.String("target", res.Target),
			slog.Bool("skipped", res.Skipped))
	}
}

// SyncSummary counts what a full scan changed.
type SyncSummary struct {
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Renamed   int                `json:"renamed"`
	Deleted   int                `json:"deleted"`
	Unchanged int                `json:"unchanged"`
	Errors    int                `json:"errors"`
	Failures  []importer.Failure `json:"failures,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Changed reports whether the scan wrote anything.
func (s *SyncSummary) Changed() bool {
	return s.Created+s.Updated+s.Renamed+s.Deleted > 0
}

// SyncOnce reconciles root with a full scan: every eligible file is
// processed, then mappings below root whose file is gone are removed.
// Renames are therefore picked up before the old paths are deleted.
func (s *Syncer) SyncOnce(ctx context.Context, root string) (*SyncSummary, error) {
	start := time.Now()
	abs, err := layout.ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	files, err := layout.Discover(ctx, abs)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{}
	var mu sync.Mutex
	record := func(path string, out *index.Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Errors++
			summary.Failures = append(summary.Failures, importer.Failure{Path: path, Reason: err.Error()})
			return
		}
		switch out.Action {
		case index.ActionCreated:
			summary.Created++
		case index.ActionUpdated:
			summary.Updated++
		case index.ActionRenamed:
			summary.Renamed++
		case index.ActionDeleted:
			summary.Deleted++
		default:
			summary.Unchanged++
		}
	}

	var g errgroup.Group
	for _, path := range files {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer s.sem.Release(1)
			out, err := s.upsert(ctx, path)
			record(path, out, err)
			return nil
		})
	}
	_ = g.Wait()
	defer s.flush(context.WithoutCancel(ctx))
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	mappings, err := s.pipeline.Ledger().All(ctx)
	if err != nil {
		return summary, err
	}
	prefix := abs + string(filepath.Separator)
	for _, m := range mappings {
		if !strings.HasPrefix(m.Path, prefix) {
			continue
		}
		if _, err := os.Lstat(m.Path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		out, err := s.remove(ctx, m.Path)
		record(m.Path, out, err)
	}

	summary.Duration = time.Since(start)
	return summary, nil
}
