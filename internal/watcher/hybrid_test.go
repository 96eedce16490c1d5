package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGraph returns a graph root with empty pages/ and journals/.
func newGraph(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "journals"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "logseq"), 0o755))
	// t.TempDir may sit behind a symlink; events carry the resolved path.
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	return resolved
}

func startHybrid(t *testing.T, root string, opts Options) *HybridWatcher {
	t.Helper()
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = 50 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 30 * time.Millisecond
	}
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	go func() { _ = w.Start(ctx, root) }()

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not become ready")
	}
	if w.WatcherType() == "polling" {
		// Let the baseline scan finish.
		time.Sleep(100 * time.Millisecond)
	}
	return w
}

// waitFor gathers events until one for path with op arrives.
func waitFor(t *testing.T, w *HybridWatcher, path string, op Operation) []FileEvent {
	t.Helper()
	var seen []FileEvent
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			seen = append(seen, batch...)
			for _, ev := range batch {
				if ev.Path == path && ev.Operation == op {
					return seen
				}
			}
		case err := <-w.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s, saw %v", op, path, seen)
		}
	}
}

func forEachMode(t *testing.T, fn func(t *testing.T, opts Options)) {
	t.Run("fsnotify", func(t *testing.T) { fn(t, Options{}) })
	t.Run("polling", func(t *testing.T) { fn(t, Options{ForcePolling: true}) })
}

func TestHybridWatcher_NewHybridWatcher(t *testing.T) {
	// When
	w, err := NewHybridWatcher(DefaultOptions())

	// Then
	require.NoError(t, err)
	require.NotNil(t, w)
	defer func() { _ = w.Stop() }()
	assert.True(t, w.IsHealthy())
}

func TestHybridWatcher_ForcePolling(t *testing.T) {
	w, err := NewHybridWatcher(Options{ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Equal(t, "polling", w.WatcherType())
}

func TestHybridWatcher_DetectsPageCreation(t *testing.T) {
	forEachMode(t, func(t *testing.T, opts Options) {
		// Given
		root := newGraph(t)
		w := startHybrid(t, root, opts)

		// When: a page is written
		path := filepath.Join(root, "pages", "new.md")
		require.NoError(t, os.WriteFile(path, []byte("- hello"), 0o644))

		// Then
		waitFor(t, w, path, OpCreate)
		assert.Equal(t, root, w.RootPath())
	})
}

func TestHybridWatcher_DetectsPageDeletion(t *testing.T) {
	forEachMode(t, func(t *testing.T, opts Options) {
		// Given: an existing journal
		root := newGraph(t)
		path := filepath.Join(root, "journals", "2025_01_01.md")
		require.NoError(t, os.WriteFile(path, []byte("- day"), 0o644))
		w := startHybrid(t, root, opts)

		// When
		require.NoError(t, os.Remove(path))

		// Then
		waitFor(t, w, path, OpDelete)
	})
}

func TestHybridWatcher_RenameIsDeleteThenCreate(t *testing.T) {
	forEachMode(t, func(t *testing.T, opts Options) {
		// Given
		root := newGraph(t)
		oldPath := filepath.Join(root, "pages", "a.md")
		require.NoError(t, os.WriteFile(oldPath, []byte("- a"), 0o644))
		w := startHybrid(t, root, opts)

		// When
		newPath := filepath.Join(root, "pages", "b.md")
		require.NoError(t, os.Rename(oldPath, newPath))

		// Then: the old path is deleted and the new one created
		seen := waitFor(t, w, oldPath, OpDelete)
		found := false
		for _, ev := range seen {
			found = found || (ev.Path == newPath && ev.Operation == OpCreate)
		}
		if !found {
			waitFor(t, w, newPath, OpCreate)
		}
	})
}

func TestHybridWatcher_IgnoresIneligiblePaths(t *testing.T) {
	forEachMode(t, func(t *testing.T, opts Options) {
		// Given
		root := newGraph(t)
		w := startHybrid(t, root, opts)

		// When: files are written outside pages/ and journals/, then a page
		require.NoError(t, os.WriteFile(filepath.Join(root, "logseq", "config.md"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "pages", "notes.txt"), []byte("x"), 0o644))
		page := filepath.Join(root, "pages", "p.md")
		require.NoError(t, os.WriteFile(page, []byte("- p"), 0o644))

		// Then: only the page shows up
		seen := waitFor(t, w, page, OpCreate)
		for _, ev := range seen {
			assert.Equal(t, page, ev.Path)
		}
	})
}

func TestHybridWatcher_WatchesNewDirectories(t *testing.T) {
	// Given
	root := newGraph(t)
	w := startHybrid(t, root, Options{})

	// When: a nested directory is created with a page inside
	dir := filepath.Join(root, "pages", "sub")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "nested.md")
	require.NoError(t, os.WriteFile(path, []byte("- n"), 0o644))

	// Then
	waitFor(t, w, path, OpCreate)
}

func TestHybridWatcher_ReportsRemovedDirectory(t *testing.T) {
	// Given: a watched sub-directory
	root := newGraph(t)
	dir := filepath.Join(root, "pages", "sub")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	w := startHybrid(t, root, Options{})

	// When: the directory is moved out of the graph
	require.NoError(t, os.Rename(dir, filepath.Join(t.TempDir(), "moved")))

	// Then: a directory delete is reported
	seen := waitFor(t, w, dir, OpDelete)
	for _, ev := range seen {
		if ev.Path == dir {
			assert.True(t, ev.IsDir)
		}
	}
}

func TestHybridWatcher_InvalidRoot(t *testing.T) {
	w, err := NewHybridWatcher(Options{})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
}

func TestHybridWatcher_StopClosesChannels(t *testing.T) {
	// Given
	root := newGraph(t)
	w := startHybrid(t, root, Options{})

	// When
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Then
	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
	assert.False(t, w.IsHealthy())
	assert.Zero(t, w.DroppedBatches())
}

func TestHybridWatcher_CountsDroppedBatches(t *testing.T) {
	// Given: a buffer of one batch nobody reads
	w, err := NewHybridWatcher(Options{EventBufferSize: 1})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	batch := []FileEvent{{Path: "/graph/pages/a.md", Operation: OpModify}}

	// When
	w.emitEvents(batch)
	w.emitEvents(batch)
	w.emitEvents(batch)

	// Then: the first batch is kept and the rest counted
	assert.Equal(t, uint64(2), w.DroppedBatches())
	assert.Len(t, w.Events(), 1)
}
