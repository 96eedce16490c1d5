package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/pkg/indexer"
)

// fakeIndexer records every call and fails or panics on demand.
type fakeIndexer struct {
	name string

	mu     sync.Mutex
	calls  []string
	err    error
	panics bool
	closed bool
}

var _ indexer.Indexer = (*fakeIndexer)(nil)

func newFakeIndexer(name string) *fakeIndexer {
	return &fakeIndexer{name: name}
}

func (f *fakeIndexer) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.panics {
		panic("boom")
	}
	return f.err
}

func (f *fakeIndexer) Name() string { return f.name }

func (f *fakeIndexer) Index(_ context.Context, page *domain.Page) error {
	return f.record("index:" + string(page.ID()))
}

func (f *fakeIndexer) Update(_ context.Context, page *domain.Page) error {
	return f.record("update:" + string(page.ID()))
}

func (f *fakeIndexer) Delete(_ context.Context, id domain.PageID) error {
	return f.record("delete:" + string(id))
}

func (f *fakeIndexer) Stats() indexer.IndexStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return indexer.IndexStats{DocumentCount: len(f.calls)}
}

func (f *fakeIndexer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.err
}

func (f *fakeIndexer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeIndexer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// auditingIndexer is a fakeIndexer that remembers which pages it holds and
// counts flushes.
type auditingIndexer struct {
	*fakeIndexer

	held    map[domain.PageID]bool
	flushes int
}

var (
	_ indexer.Auditor = (*auditingIndexer)(nil)
	_ indexer.Flusher = (*auditingIndexer)(nil)
)

func newAuditingIndexer(name string) *auditingIndexer {
	return &auditingIndexer{fakeIndexer: newFakeIndexer(name), held: make(map[domain.PageID]bool)}
}

func (a *auditingIndexer) Index(ctx context.Context, page *domain.Page) error {
	if err := a.fakeIndexer.Index(ctx, page); err != nil {
		return err
	}
	a.hold(page.ID(), true)
	return nil
}

func (a *auditingIndexer) Update(ctx context.Context, page *domain.Page) error {
	if err := a.fakeIndexer.Update(ctx, page); err != nil {
		return err
	}
	a.hold(page.ID(), true)
	return nil
}

func (a *auditingIndexer) Delete(ctx context.Context, id domain.PageID) error {
	if err := a.fakeIndexer.Delete(ctx, id); err != nil {
		return err
	}
	a.hold(id, false)
	return nil
}

func (a *auditingIndexer) hold(id domain.PageID, held bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if held {
		a.held[id] = true
	} else {
		delete(a.held, id)
	}
}

// lose forgets a page as a crash before a save would.
func (a *auditingIndexer) lose(id domain.PageID) { a.hold(id, false) }

func (a *auditingIndexer) Covers(_ context.Context, page *domain.Page) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held[page.ID()], nil
}

func (a *auditingIndexer) Flush(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushes++
	return a.err
}

func (a *auditingIndexer) Flushes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushes
}

func testPage(t *testing.T, id domain.PageID) *domain.Page {
	t.Helper()
	return domain.NewPage(id, "test")
}

func TestCoordinator_FansOutToAllTargets(t *testing.T) {
	// Given: two healthy targets
	a, b := newFakeIndexer("a"), newFakeIndexer("b")
	c := NewCoordinator()
	c.Register(a)
	c.Register(b)

	// When
	report := c.Index(context.Background(), testPage(t, "page-1"))

	// Then: both were called and the report is clean
	require.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Equal(t, OpIndex, report.Op)
	assert.Equal(t, domain.PageID("page-1"), report.PageID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "a", report.Results[0].Target)
	assert.Equal(t, "b", report.Results[1].Target)
	assert.Equal(t, []string{"index:page-1"}, a.Calls())
	assert.Equal(t, []string{"index:page-1"}, b.Calls())
}

func TestCoordinator_FailingTargetDoesNotStopOthers(t *testing.T) {
	// Given: one failing target between two healthy ones
	a, bad, c := newFakeIndexer("a"), newFakeIndexer("bad"), newFakeIndexer("c")
	bad.setErr(errors.New("disk full"))
	coord := NewCoordinator()
	coord.Register(a)
	coord.Register(bad)
	coord.Register(c)

	// When
	report := coord.Update(context.Background(), testPage(t, "page-1"))

	// Then: the failure is reported per target
	assert.False(t, report.OK())
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Target)
	assert.False(t, failed[0].Skipped)
	assert.True(t, errors.Is(failed[0].Err, amerrors.ErrIndex))
	assert.ErrorContains(t, report.Err(), "disk full")

	// And: the healthy targets still ran
	assert.Equal(t, []string{"update:page-1"}, a.Calls())
	assert.Equal(t, []string{"update:page-1"}, c.Calls())
}

func TestCoordinator_RecoversPanics(t *testing.T) {
	// Given: a target that panics
	ok, bad := newFakeIndexer("ok"), newFakeIndexer("bad")
	bad.panics = true
	c := NewCoordinator()
	c.Register(ok)
	c.Register(bad)

	// When
	report := c.Delete(context.Background(), "page-1")

	// Then: the panic becomes an index error
	require.Len(t, report.Failed(), 1)
	assert.ErrorContains(t, report.Failed()[0].Err, "panic: boom")
	assert.Equal(t, amerrors.ErrCodeIndex, amerrors.GetCode(report.Failed()[0].Err))
	assert.Equal(t, []string{"delete:page-1"}, ok.Calls())
}

func TestCoordinator_BreakerSkipsFailingTarget(t *testing.T) {
	// Given: a breaker that opens after two failures
	bad := newFakeIndexer("bad")
	bad.setErr(errors.New("unavailable"))
	c := NewCoordinator(WithBreaker(amerrors.WithMaxFailures(2), amerrors.WithResetTimeout(time.Hour)))
	c.Register(bad)

	// When: three operations run
	for range 2 {
		report := c.Index(context.Background(), testPage(t, "page-1"))
		require.False(t, report.Failed()[0].Skipped)
	}
	report := c.Index(context.Background(), testPage(t, "page-2"))

	// Then: the third is skipped without calling the target
	require.Len(t, report.Failed(), 1)
	assert.True(t, report.Failed()[0].Skipped)
	assert.Len(t, bad.Calls(), 2)
}

func TestCoordinator_HealthShowsOpenBreaker(t *testing.T) {
	// Given: one healthy and one broken target
	good, bad := newFakeIndexer("text"), newFakeIndexer("vector")
	bad.setErr(errors.New("embedder unavailable"))
	c := NewCoordinator(WithBreaker(amerrors.WithMaxFailures(1), amerrors.WithResetTimeout(time.Hour)))
	c.Register(good)
	c.Register(bad)

	// When: an operation trips the broken one
	c.Index(context.Background(), testPage(t, "page-1"))
	health := c.Health()

	// Then: its breaker is reported open with the cause
	require.Len(t, health, 2)
	assert.Equal(t, "text", health[0].Name)
	assert.Equal(t, amerrors.BreakerClosed, health[0].State)
	assert.Equal(t, "vector", health[1].Name)
	assert.Equal(t, amerrors.BreakerOpen, health[1].State)
	assert.Equal(t, 1, health[1].Failures)
	assert.Contains(t, health[1].LastError, "embedder unavailable")
}

func TestCoordinator_FlushAndAudit(t *testing.T) {
	ctx := context.Background()
	plain, audited := newFakeIndexer("plain"), newAuditingIndexer("vector")
	c := NewCoordinator()
	c.Register(plain)
	c.Register(audited)

	page := testPage(t, "page-1")
	drifted, err := c.Audit(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, []string{"vector"}, drifted, "targets without an auditor are trusted")

	require.True(t, c.Index(ctx, page).OK())
	drifted, err = c.Audit(ctx, page)
	require.NoError(t, err)
	assert.Empty(t, drifted)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 1, audited.Flushes())

	audited.setErr(errors.New("disk full"))
	err = c.Flush(ctx)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, amerrors.ErrCodeIndex, amerrors.GetCode(err))
}

func TestCoordinator_NoTargets(t *testing.T) {
	report := NewCoordinator().Index(context.Background(), testPage(t, "page-1"))

	assert.True(t, report.OK())
	assert.Empty(t, report.Results)
}

func TestCoordinator_Close(t *testing.T) {
	// Given
	a, b := newFakeIndexer("a"), newFakeIndexer("b")
	b.setErr(errors.New("flush failed"))
	c := NewCoordinator()
	c.Register(a)
	c.Register(b)
	require.Len(t, c.Targets(), 2)

	// When
	err := c.Close()

	// Then: every target was closed and the error names the failing one
	assert.ErrorContains(t, err, "close b")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestReport_NilIsOK(t *testing.T) {
	var r *Report
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "index", OpIndex.String())
	assert.Equal(t, "update", OpUpdate.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", Op(42).String())
}
