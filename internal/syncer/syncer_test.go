package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/blockindex/internal/embed"
	"github.com/Aman-CERP/blockindex/internal/index"
	"github.com/Aman-CERP/blockindex/internal/ledger"
	"github.com/Aman-CERP/blockindex/internal/store"
	"github.com/Aman-CERP/blockindex/internal/watcher"
	"github.com/Aman-CERP/blockindex/pkg/indexer"
)

// fakeSource is a Source driven by the test.
type fakeSource struct {
	events chan []watcher.FileEvent
	errs   chan error
	ready  chan struct{}
	stop   chan struct{}
	once   sync.Once

	dropped atomic.Uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan []watcher.FileEvent, 10),
		errs:   make(chan error, 10),
		ready:  make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (f *fakeSource) Start(ctx context.Context, _ string) error {
	close(f.ready)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stop:
		return nil
	}
}

func (f *fakeSource) Ready() <-chan struct{}             { return f.ready }
func (f *fakeSource) Events() <-chan []watcher.FileEvent { return f.events }
func (f *fakeSource) Errors() <-chan error               { return f.errs }

func (f *fakeSource) DroppedBatches() uint64 { return f.dropped.Load() }

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.stop) })
	return nil
}

type syncEnv struct {
	root   string
	repo   *store.MemoryStore
	pipe   *index.Pipeline
	source *fakeSource
	events chan Event
	syncer *Syncer
}

func newSyncEnv(t *testing.T, opts ...Option) *syncEnv {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages"), 0o755))

	repo := store.NewMemoryStore()
	env := &syncEnv{
		root:   root,
		repo:   repo,
		pipe:   index.NewPipeline(repo, ledger.New(repo), index.NewCoordinator()),
		source: newFakeSource(),
		events: make(chan Event, 100),
	}
	base := []Option{
		WithSource(func() (Source, error) { return env.source, nil }),
		WithListener(func(e Event) { env.events <- e }),
	}
	env.syncer = New(env.pipe, append(base, opts...)...)
	return env
}

func (e *syncEnv) start(t *testing.T) *Handle {
	t.Helper()
	h, err := e.syncer.Start(context.Background(), e.root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func (e *syncEnv) page(name string) string {
	return filepath.Join(e.root, "pages", name)
}

func (e *syncEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := e.page(name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *syncEnv) send(events ...watcher.FileEvent) {
	e.source.events <- events
}

func (e *syncEnv) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-e.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sync event")
		return nil
	}
}

func (e *syncEnv) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e.events:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandle_CreateModifyDelete(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	h := env.start(t)
	ctx := context.Background()

	// Given: a new page
	path := env.write(t, "a.md", "- one\n")

	// When: created
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})

	// Then
	created, ok := env.next(t).(FileCreated)
	require.True(t, ok)
	assert.Equal(t, path, created.Path)
	assert.Equal(t, PathTracked, h.PathState(path))

	// When: modified with new content and time
	require.NoError(t, os.WriteFile(path, []byte("- one\n- two\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpModify})

	// Then: same page, new blocks
	updated, ok := env.next(t).(FileUpdated)
	require.True(t, ok)
	assert.Equal(t, created.PageID, updated.PageID)
	assert.False(t, updated.Renamed)
	page, err := env.repo.FindByID(ctx, created.PageID)
	require.NoError(t, err)
	assert.Equal(t, 2, page.BlockCount())

	// When: deleted
	require.NoError(t, os.Remove(path))
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpDelete})

	// Then
	deleted, ok := env.next(t).(FileDeleted)
	require.True(t, ok)
	assert.Equal(t, created.PageID, deleted.PageID)
	assert.Eventually(t, func() bool { return h.PathState(path) == PathDeleted }, time.Second, 10*time.Millisecond)
	n, err := env.repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandle_ModifyUnmappedIsCreate(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	path := env.write(t, "a.md", "- one\n")
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpModify})

	_, ok := env.next(t).(FileCreated)
	assert.True(t, ok)
}

func TestHandle_TouchWithoutChange(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)
	path := env.write(t, "a.md", "- one\n")
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})
	_ = env.next(t)

	// When: touched
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpModify})

	// Then: nothing to report
	env.quiet(t)
}

func TestHandle_DeleteUntrackedIsNoop(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	env.send(watcher.FileEvent{Path: env.page("never.md"), Operation: watcher.OpDelete})

	env.quiet(t)
}

func TestHandle_RenameInOneBatchKeepsPage(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	// Given: a synced page
	oldPath := env.write(t, "b-old.md", "- keep me\n")
	env.send(watcher.FileEvent{Path: oldPath, Operation: watcher.OpCreate})
	created := env.next(t).(FileCreated)

	// When: moved, size and time unchanged, reported as one batch with the
	// delete sorted first
	newPath := env.page("c-new.md")
	require.NoError(t, os.Rename(oldPath, newPath))
	env.send(
		watcher.FileEvent{Path: oldPath, Operation: watcher.OpDelete},
		watcher.FileEvent{Path: newPath, Operation: watcher.OpCreate},
	)

	// Then: the page moved and was not deleted
	updated, ok := env.next(t).(FileUpdated)
	require.True(t, ok)
	assert.True(t, updated.Renamed)
	assert.Equal(t, created.PageID, updated.PageID)
	env.quiet(t)

	m, err := env.pipe.Ledger().FindByPath(context.Background(), newPath)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, created.PageID, m.PageID)
}

func TestHandle_FailureDoesNotStopLoop(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	// Given: a malformed outline
	bad := env.write(t, "bad.md", "    - too deep\n")
	env.send(watcher.FileEvent{Path: bad, Operation: watcher.OpCreate})

	// Then: an error is reported
	syncErr, ok := env.next(t).(SyncError)
	require.True(t, ok)
	assert.Equal(t, bad, syncErr.Path)
	assert.Error(t, syncErr.Err)

	// And: later events are still applied
	good := env.write(t, "good.md", "- fine\n")
	env.send(watcher.FileEvent{Path: good, Operation: watcher.OpCreate})
	_, ok = env.next(t).(FileCreated)
	assert.True(t, ok)
}

func TestHandle_WatcherErrorIsReported(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	env.source.errs <- errors.New("queue overflow")

	syncErr, ok := env.next(t).(SyncError)
	require.True(t, ok)
	assert.Empty(t, syncErr.Path)
	assert.ErrorContains(t, syncErr.Err, "queue overflow")
}

func TestHandle_VanishedBeforeProcessing(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)
	path := env.write(t, "a.md", "- one\n")
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})
	_ = env.next(t)

	// When: a modify arrives for a file that is already gone
	require.NoError(t, os.Remove(path))
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpModify})

	// Then: the page is removed rather than an error reported
	_, ok := env.next(t).(FileDeleted)
	assert.True(t, ok)
}

func TestHandle_DirectoryRemoval(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.start(t)

	// Given: two pages in a sub-directory
	dir := env.page("sub")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"x.md", "y.md"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("- "+name), 0o644))
		env.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})
		_ = env.next(t)
	}

	// When: the directory disappears
	require.NoError(t, os.RemoveAll(dir))
	env.send(watcher.FileEvent{Path: dir, Operation: watcher.OpDelete, IsDir: true})

	// Then: both pages are deleted
	for range 2 {
		_, ok := env.next(t).(FileDeleted)
		require.True(t, ok)
	}
}

func TestHandle_BatchIsFlushed(t *testing.T) {
	// Given: a vector index saved to a file
	vectorsPath := filepath.Join(t.TempDir(), "vectors.hnsw")
	vectors, err := store.NewHNSWVectorIndex(store.VectorConfig{
		Path: vectorsPath, Dimensions: embed.StaticDimensions, Metric: store.MetricCosine,
	})
	require.NoError(t, err)
	vecIdx, err := indexer.NewVectorIndexer(
		indexer.WithEmbedder(embed.NewStaticEmbedder()),
		indexer.WithVectorStore(vectors),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vecIdx.Close() })

	env := newSyncEnv(t, WithReconcileOnStart(false))
	env.pipe.Coordinator().Register(vecIdx)
	env.start(t)

	// When: a batch creates a page
	path := env.write(t, "a.md", "- tomatoes need sun\n")
	env.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})
	_, ok := env.next(t).(FileCreated)
	require.True(t, ok)

	// Then: the vectors reach disk without closing the index
	assert.Eventually(t, func() bool {
		_, err := os.Stat(vectorsPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandle_DroppedBatchesTriggerRescan(t *testing.T) {
	env := newSyncEnv(t, WithReconcileOnStart(false), WithOverflowCheck(20*time.Millisecond))
	env.start(t)

	// Given: a file whose event the watcher dropped
	path := env.write(t, "a.md", "- lost event\n")
	env.source.dropped.Add(1)

	// Then: the next check rescans the root and indexes it
	created, ok := env.next(t).(FileCreated)
	require.True(t, ok)
	assert.Equal(t, path, created.Path)
	page, err := env.repo.FindByTitle(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, page)

	// And: an unchanged count does not rescan again
	env.write(t, "b.md", "- not seen\n")
	env.quiet(t)
}

func TestStart_ReconcilesExistingFiles(t *testing.T) {
	env := newSyncEnv(t)
	env.write(t, "a.md", "- existing\n")

	// When
	env.start(t)

	// Then: the page is stored before Start returns
	page, err := env.repo.FindByTitle(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, page)
}

func TestStart_InvalidRoot(t *testing.T) {
	env := newSyncEnv(t)

	_, err := env.syncer.Start(context.Background(), filepath.Join(env.root, "missing"))

	require.Error(t, err)
}

func TestHandles_AreIndependent(t *testing.T) {
	// Given: two synchronizers over separate graphs
	a := newSyncEnv(t, WithReconcileOnStart(false))
	b := newSyncEnv(t, WithReconcileOnStart(false))
	ha := a.start(t)
	b.start(t)

	// When: one is stopped
	require.NoError(t, ha.Stop())
	require.NoError(t, ha.Stop())

	// Then: the other keeps working
	path := b.write(t, "a.md", "- b\n")
	b.send(watcher.FileEvent{Path: path, Operation: watcher.OpCreate})
	_, ok := b.next(t).(FileCreated)
	assert.True(t, ok)
}

func TestSyncOnce_Reconciles(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	// Given: three synced pages
	a := env.write(t, "a.md", "- a\n")
	env.write(t, "b.md", "- b\n")
	c := env.write(t, "c.md", "- c\n")
	first, err := env.syncer.SyncOnce(ctx, env.root)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.True(t, first.Changed())

	// And: a renamed, b untouched, c deleted, d new
	aInfo, err := os.Stat(a)
	require.NoError(t, err)
	renamed := env.page("a-moved.md")
	require.NoError(t, os.Rename(a, renamed))
	require.NoError(t, os.Chtimes(renamed, aInfo.ModTime(), aInfo.ModTime()))
	require.NoError(t, os.Remove(c))
	env.write(t, "d.md", "- d\n")

	// When
	summary, err := env.syncer.SyncOnce(ctx, env.root)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Renamed)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Zero(t, summary.Errors)

	n, err := env.repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSyncOnce_Unchanged(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	env.write(t, "a.md", "- a\n")
	_, err := env.syncer.SyncOnce(ctx, env.root)
	require.NoError(t, err)

	summary, err := env.syncer.SyncOnce(ctx, env.root)

	require.NoError(t, err)
	assert.False(t, summary.Changed())
	assert.Equal(t, 1, summary.Unchanged)
}

func TestPathQueues_OrderAndBound(t *testing.T) {
	q := newPathQueues(semaphore.NewWeighted(2))
	ctx := context.Background()

	var (
		mu      sync.Mutex
		order   = map[string][]int{}
		running atomic.Int32
		peak    atomic.Int32
	)
	task := func(path string, n int) func(context.Context) {
		return func(context.Context) {
			cur := running.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order[path] = append(order[path], n)
			mu.Unlock()
			running.Add(-1)
		}
	}

	// When: five tasks each for four paths
	for n := range 5 {
		for _, p := range []string{"a", "b", "c", "d"} {
			q.submit(ctx, p, task(p, n), nil)
		}
	}
	q.wait()

	// Then: per-path order holds and at most two ran at once
	for _, p := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order[p])
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPathState_String(t *testing.T) {
	assert.Equal(t, "unknown", PathUnknown.String())
	assert.Equal(t, "tracked", PathTracked.String())
	assert.Equal(t, "deleted", PathDeleted.String())
}
