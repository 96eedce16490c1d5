package engine

import (
	"context"
	"log/slog"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/importer"
	"github.com/Aman-CERP/blockindex/internal/index"
	"github.com/Aman-CERP/blockindex/internal/syncer"
)

// ImportDirectory imports every page file under dir. listener may be nil.
// Only one import runs at a time per engine.
func (e *Engine) ImportDirectory(ctx context.Context, dir string, listener importer.Listener) (*importer.Summary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.importMu.TryLock() {
		return nil, amerrors.OrchestrationError("an import is already running", nil)
	}
	defer e.importMu.Unlock()

	opts := []importer.Option{
		importer.WithSemaphore(e.sem),
		importer.WithLogger(e.logger),
	}
	if listener != nil {
		opts = append(opts, importer.WithListener(listener))
	}
	return importer.New(e.pipeline, opts...).ImportDirectory(ctx, dir)
}

func (e *Engine) newSyncer(listener syncer.Listener, reconcile bool) (*syncer.Syncer, error) {
	opts := []syncer.Option{
		syncer.WithSemaphore(e.sem),
		syncer.WithLogger(e.logger),
		syncer.WithReconcileOnStart(reconcile),
	}
	if listener != nil {
		opts = append(opts, syncer.WithListener(listener))
	}
	if e.source != nil {
		opts = append(opts, syncer.WithSource(e.source))
	} else {
		wopts, err := e.watcherOptions()
		if err != nil {
			return nil, amerrors.ConfigError("invalid sync settings", err)
		}
		opts = append(opts, syncer.WithWatcherOptions(wopts))
	}
	return syncer.New(e.pipeline, opts...), nil
}

// StartSync starts watching dir and applying its changes. It returns once
// the watch is in place. An engine runs one live session at a time. The
// initial reconciliation runs outside the engine lock, so searches are
// served meanwhile.
func (e *Engine) StartSync(ctx context.Context, dir string, listener syncer.Listener) error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return amerrors.OrchestrationError("engine is closed", nil)
	case e.session != nil:
		root := e.session.Root()
		e.mu.Unlock()
		return amerrors.OrchestrationError("sync is already running for "+root, nil)
	case e.starting:
		e.mu.Unlock()
		return amerrors.OrchestrationError("sync is already starting", nil)
	}
	e.starting = true
	e.startDone = make(chan struct{})
	done := e.startDone
	e.mu.Unlock()

	h, err := e.startSession(ctx, dir, listener)

	defer close(done)
	e.mu.Lock()
	e.starting = false
	closed := e.closed
	if err == nil && !closed {
		e.session = h
	}
	e.mu.Unlock()
	if err == nil && closed {
		_ = h.Stop()
		return amerrors.OrchestrationError("engine closed while sync was starting", nil)
	}
	return err
}

func (e *Engine) startSession(ctx context.Context, dir string, listener syncer.Listener) (*syncer.Handle, error) {
	s, err := e.newSyncer(listener, e.cfg.Sync.ReconcileOnStart)
	if err != nil {
		return nil, err
	}
	return s.Start(ctx, dir)
}

// StopSync stops the live session. It is a no-op when none runs.
func (e *Engine) StopSync() error {
	e.mu.Lock()
	h := e.session
	e.session = nil
	e.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Stop()
}

// Syncing reports whether a live session runs.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// SyncOnce repairs orphan pages, dangling mappings and index drift, then
// reconciles dir with a full scan.
func (e *Engine) SyncOnce(ctx context.Context, dir string) (*syncer.SyncSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	checker := index.NewConsistencyChecker(e.pipeline)
	res, err := checker.Check(ctx)
	if err != nil {
		return nil, err
	}
	issues := res.Only(index.InconsistencyOrphanPage, index.InconsistencyDanglingMapping, index.InconsistencyIndexDrift)
	if err := checker.Repair(ctx, issues); err != nil {
		e.logger.Warn("sync_repair_failed", slog.String("error", err.Error()))
	}

	s, err := e.newSyncer(nil, false)
	if err != nil {
		return nil, err
	}
	return s.SyncOnce(ctx, dir)
}
