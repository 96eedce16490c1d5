package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/embed"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/index"
	"github.com/Aman-CERP/blockindex/internal/layout"
	"github.com/Aman-CERP/blockindex/internal/ledger"
	"github.com/Aman-CERP/blockindex/internal/store"
	"github.com/Aman-CERP/blockindex/internal/syncer"
	"github.com/Aman-CERP/blockindex/internal/watcher"
	"github.com/Aman-CERP/blockindex/pkg/indexer"
	"github.com/Aman-CERP/blockindex/pkg/searcher"
)

// File names inside the data directory.
const (
	PagesDBName   = "pages.db"
	TextIndexBase = "text"
	VectorsName   = "vectors.hnsw"
)

// Deps are the stores an Engine runs on. Open builds them from
// configuration; tests pass in-memory ones to NewWithDeps.
type Deps struct {
	Repo     store.PageRepository
	Mappings ledger.Store
	Text     store.TextIndex

	// Vectors and Embedder are both set or both nil.
	Vectors  store.VectorIndex
	Embedder embed.Embedder

	// SyncSource replaces the file watcher used by StartSync.
	SyncSource syncer.SourceFactory
}

// Engine is an opened graph.
type Engine struct {
	cfg     *config.Config
	root    string
	dataDir string
	logger  *slog.Logger

	lock     *store.DataDirLock
	repo     store.PageRepository
	text     store.TextIndex
	vectors  store.VectorIndex
	embedder embed.Embedder
	closers  []io.Closer

	pipeline *index.Pipeline
	sem      *semaphore.Weighted
	source   syncer.SourceFactory

	textSearch   searcher.Searcher
	vectorSearch searcher.Searcher

	importMu sync.Mutex

	mu      sync.Mutex
	session *syncer.Handle
	closed  bool
	// starting is set while StartSync runs its reconciliation; startDone
	// closes when it ends.
	starting  bool
	startDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Open opens the graph at root with the stores named by cfg. It takes the
// data directory lock and fails if another process holds it.
func Open(cfg *config.Config, root string, opts ...Option) (*Engine, error) {
	abs, err := layout.ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.DataPath(abs)
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(abs, dataDir)
	}

	lock := store.NewDataDirLock(dataDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	var cleanup []io.Closer
	fail := func(err error) (*Engine, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i].Close()
		}
		_ = lock.Release()
		return nil, err
	}

	repo, err := store.OpenSQLite(filepath.Join(dataDir, PagesDBName), cfg.Storage.Driver)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, repo)

	text, err := store.NewTextIndex(cfg.Search.Backend, filepath.Join(dataDir, TextIndexBase))
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, text)

	deps := Deps{Repo: repo, Mappings: repo, Text: text}
	if cfg.VectorsActive() {
		emb, err := embed.NewEmbedder(cfg.Vectors.Provider, cfg.Vectors.CacheSize)
		if err != nil {
			return fail(err)
		}
		if emb != nil {
			cleanup = append(cleanup, emb)
			dims := cfg.Vectors.Dimensions
			if dims == 0 {
				dims = emb.Dimensions()
			}
			if dims != emb.Dimensions() {
				return fail(amerrors.ConfigError(
					fmt.Sprintf("vectors.dimensions is %d but embedder %s produces %d", dims, emb.ModelName(), emb.Dimensions()), nil))
			}
			vectors, err := store.NewHNSWVectorIndex(store.VectorConfig{
				Path:       filepath.Join(dataDir, VectorsName),
				Dimensions: dims,
				Metric:     store.MetricCosine,
			})
			if err != nil {
				return fail(err)
			}
			cleanup = append(cleanup, vectors)
			deps.Vectors, deps.Embedder = vectors, emb
		}
	}

	e, err := build(cfg, abs, dataDir, deps, opts)
	if err != nil {
		return fail(err)
	}
	e.lock = lock
	e.closers = append(e.closers, repo)

	e.repairDrift(context.Background())

	e.logger.Info("engine_opened",
		slog.String("root", abs),
		slog.String("data_dir", dataDir),
		slog.String("text_backend", cfg.Search.Backend),
		slog.Bool("vectors", deps.Vectors != nil))
	return e, nil
}

// repairDrift re-sends pages an index lost, such as vectors added after the
// last save of a process that crashed. Other issues are only logged; they
// are repaired by SyncOnce.
func (e *Engine) repairDrift(ctx context.Context) {
	checker := index.NewConsistencyChecker(e.pipeline)
	res, err := checker.Check(ctx)
	if err != nil {
		e.logger.Warn("engine_check_failed", amerrors.LogArgs(err)...)
		return
	}
	if len(res.Inconsistencies) == 0 {
		return
	}
	drift := res.Only(index.InconsistencyIndexDrift)
	e.logger.Warn("engine_inconsistent_at_open",
		slog.Int("issues", len(res.Inconsistencies)),
		slog.Int("drifted", len(drift)),
		slog.Int("pages", res.Checked))
	if len(drift) == 0 {
		return
	}
	if err := checker.Repair(ctx, drift); err != nil {
		e.logger.Warn("engine_drift_repair_failed", amerrors.LogArgs(err)...)
	}
}

// NewWithDeps builds an engine on caller-supplied stores without touching
// the file system beyond root. Closing the engine closes the indexes; Repo
// is closed too when it implements io.Closer.
func NewWithDeps(cfg *config.Config, root string, deps Deps, opts ...Option) (*Engine, error) {
	if deps.Repo == nil || deps.Mappings == nil || deps.Text == nil {
		return nil, errors.New("repo, mappings and text index are required")
	}
	if (deps.Vectors == nil) != (deps.Embedder == nil) {
		return nil, errors.New("vectors and embedder must be set together")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	e, err := build(cfg, abs, "", deps, opts)
	if err != nil {
		return nil, err
	}
	if c, ok := deps.Repo.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}
	return e, nil
}

func build(cfg *config.Config, root, dataDir string, deps Deps, opts []Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	e := &Engine{
		cfg:      cfg,
		root:     root,
		dataDir:  dataDir,
		logger:   slog.Default(),
		repo:     deps.Repo,
		text:     deps.Text,
		vectors:  deps.Vectors,
		embedder: deps.Embedder,
		source:   deps.SyncSource,
		sem:      semaphore.NewWeighted(int64(max(cfg.Import.Concurrency, 1))),
	}
	for _, opt := range opts {
		opt(e)
	}

	coord := index.NewCoordinator(index.WithCoordinatorLogger(e.logger))
	textIdx, err := indexer.NewTextIndexer(indexer.WithStore(deps.Text))
	if err != nil {
		return nil, err
	}
	coord.Register(textIdx)
	e.textSearch, err = searcher.NewTextSearcher(searcher.WithTextStore(deps.Text))
	if err != nil {
		return nil, err
	}

	if deps.Vectors != nil {
		vecIdx, err := indexer.NewVectorIndexer(
			indexer.WithEmbedder(deps.Embedder),
			indexer.WithVectorStore(deps.Vectors),
			indexer.WithChunking(cfg.Vectors.MaxWords, cfg.Vectors.Overlap),
			indexer.WithBatchSize(cfg.Vectors.BatchSize),
		)
		if err != nil {
			return nil, err
		}
		coord.Register(vecIdx)
		e.vectorSearch, err = searcher.NewVectorSearcher(
			searcher.WithSearchEmbedder(deps.Embedder),
			searcher.WithSearchVectorStore(deps.Vectors),
		)
		if err != nil {
			return nil, err
		}
	}

	l := ledger.New(deps.Mappings, ledger.WithLogger(e.logger))
	e.pipeline = index.NewPipeline(deps.Repo, l, coord, index.WithLogger(e.logger))
	return e, nil
}

// Root returns the absolute graph directory.
func (e *Engine) Root() string { return e.root }

// DataDir returns the data directory, empty for engines built with
// NewWithDeps.
func (e *Engine) DataDir() string { return e.dataDir }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Pipeline returns the per-file pipeline.
func (e *Engine) Pipeline() *index.Pipeline { return e.pipeline }

// VectorsEnabled reports whether a vector index is attached.
func (e *Engine) VectorsEnabled() bool { return e.vectors != nil }

func (e *Engine) watcherOptions() (watcher.Options, error) {
	debounce, err := e.cfg.DebounceDuration()
	if err != nil {
		return watcher.Options{}, err
	}
	poll, err := e.cfg.PollIntervalDuration()
	if err != nil {
		return watcher.Options{}, err
	}
	return watcher.Options{
		DebounceWindow:  debounce,
		PollInterval:    poll,
		EventBufferSize: e.cfg.Sync.EventBuffer,
		ForcePolling:    e.cfg.Sync.ForcePolling,
	}, nil
}

// Close stops a running sync, closes the indexes (saving the vector
// index), closes the structured store and releases the lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	session := e.session
	e.session = nil
	var starting chan struct{}
	if e.starting {
		starting = e.startDone
	}
	e.mu.Unlock()

	// A sync that is starting sees closed and stops its own handle.
	if starting != nil {
		<-starting
	}

	var errs []error
	if session != nil {
		errs = append(errs, session.Stop())
	}
	errs = append(errs, e.pipeline.Coordinator().Close())
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	if e.lock != nil {
		errs = append(errs, e.lock.Release())
	}
	e.logger.Info("engine_closed", slog.String("root", e.root))
	return errors.Join(errs...)
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return amerrors.OrchestrationError("engine is closed", nil)
	}
	return nil
}
