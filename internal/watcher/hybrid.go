package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/blockindex/internal/layout"
)

// HybridWatcher watches a graph root with fsnotify, falling back to polling.
// It emits debounced batches of events for eligible page files only.
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	rootPath       string
	dirs           map[string]bool
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	ready          chan struct{}
	droppedBatches atomic.Uint64
}

// NewHybridWatcher creates a watcher. fsnotify is tried first unless
// ForcePolling is set.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		dirs:      make(map[string]bool),
		ready:     make(chan struct{}),
		opts:      opts,
	}

	if !opts.ForcePolling {
		if fsw, err := fsnotify.NewWatcher(); err == nil {
			h.fsWatcher = fsw
			h.useFsnotify = true
		} else {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	if !h.useFsnotify {
		h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}

	return h, nil
}

// Start watches root until ctx is done or Stop is called. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	abs, err := layout.ValidateRoot(root)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.rootPath = abs
	h.mu.Unlock()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

// Ready is closed once the initial watch set is in place.
func (h *HybridWatcher) Ready() <-chan struct{} {
	return h.ready
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				if layout.IsEligible(h.rootPath, event.Path) {
					h.debouncer.Add(event)
				}
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	close(h.ready)
	return h.pollWatcher.Start(ctx, h.rootPath)
}

// handleFsnotifyEvent maps a raw notification to a FileEvent. Renames are
// deletes of the old name; the new name gets its own create.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	now := time.Now()

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			h.watchNewDir(path)
			return
		}
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if h.forgetDir(path) {
			h.debouncer.Add(FileEvent{Path: path, Operation: OpDelete, IsDir: true, Timestamp: now})
			return
		}
		op = OpDelete
	default:
		// chmod
		return
	}

	if !layout.IsEligible(h.rootPath, path) {
		return
	}
	h.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: now})
}

// watchNewDir watches a directory created after Start and reports the page
// files it already holds, which were written before the watch existed.
func (h *HybridWatcher) watchNewDir(dir string) {
	if layout.SkipDir(filepath.Base(dir)) {
		return
	}
	if err := h.addRecursive(dir); err != nil {
		h.emitError(fmt.Errorf("watch %s: %w", dir, err))
		return
	}

	now := time.Now()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && layout.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && layout.IsEligible(h.rootPath, path) {
			h.debouncer.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		}
		return nil
	})
}

// addRecursive watches root and every non-skipped directory below it.
func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != h.rootPath && layout.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := h.fsWatcher.Add(path); err != nil {
			return err
		}
		h.mu.Lock()
		h.dirs[path] = true
		h.mu.Unlock()
		return nil
	})
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir was watched.
func (h *HybridWatcher) forgetDir(dir string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirs[dir] {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range h.dirs {
		if d == dir || (len(d) > len(prefix) && d[:len(prefix)] == prefix) {
			delete(h.dirs, d)
		}
	}
	return true
}

func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				h.emitEvents(events)
			}
		}
	}
}

func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("event_buffer_full",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Pending events that have
// not been debounced yet are discarded.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.mu.Unlock()

	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	h.mu.Lock()
	close(h.events)
	close(h.errors)
	h.mu.Unlock()
	return nil
}

// Events returns the channel of batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy reports whether the watcher is running.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the watched root.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
