package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/ledger"
	"github.com/Aman-CERP/blockindex/internal/store"
)

type pipelineEnv struct {
	root     string
	repo     *store.MemoryStore
	target   *fakeIndexer
	pipeline *Pipeline
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages"), 0o755))

	repo := store.NewMemoryStore()
	target := newFakeIndexer("fake")
	coord := NewCoordinator()
	coord.Register(target)

	return &pipelineEnv{
		root:     root,
		repo:     repo,
		target:   target,
		pipeline: NewPipeline(repo, ledger.New(repo), coord),
	}
}

func (e *pipelineEnv) write(t *testing.T, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(e.root, "pages", name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

var mtime0 = time.Date(2025, 10, 11, 9, 0, 0, 0, time.UTC)

func TestPipeline_ProcessNewFile(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	// Given: a page with a URL and a nested link
	path := env.write(t, "a.md", "- Visit https://x.com\n  - See [[b]]\n", mtime0)

	// When
	out, err := env.pipeline.Process(ctx, path)

	// Then: the page is stored, mapped and indexed once
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	require.NotNil(t, out.Report)
	assert.True(t, out.Report.OK())

	page, err := env.repo.FindByID(ctx, out.PageID)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "a", page.Title())
	require.Equal(t, 2, page.BlockCount())

	roots := page.RootIDs()
	require.Len(t, roots, 1)
	root, _ := page.Block(roots[0])
	require.Len(t, root.Children(), 1)
	child, _ := page.Block(root.Children()[0])
	parent, ok := child.Parent()
	require.True(t, ok)
	assert.Equal(t, root.ID(), parent)

	require.Len(t, page.URLs(), 1)
	assert.Equal(t, "https://x.com", page.URLs()[0].String())
	refs := page.References()
	require.Len(t, refs, 1)
	assert.Equal(t, domain.KindLink, refs[0].Kind)

	m, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, out.PageID, m.PageID)
	assert.Equal(t, []string{"index:" + string(out.PageID)}, env.target.Calls())
}

func TestPipeline_TouchWithoutChangeIsUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)
	first, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)

	// Given: the file is touched, same content, newer time
	later := mtime0.Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	// When
	out, err := env.pipeline.Process(ctx, path)

	// Then: nothing is re-indexed and the recorded time moves forward
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, out.Action)
	assert.Equal(t, first.PageID, out.PageID)
	assert.Nil(t, out.Report)
	assert.Len(t, env.target.Calls(), 1)

	m, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	assert.True(t, m.ModifiedAt.Equal(later))
}

func TestPipeline_ProcessUnchangedFile(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)
	_, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)

	out, err := env.pipeline.Process(ctx, path)

	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, out.Action)
	assert.Len(t, env.target.Calls(), 1)
}

func TestPipeline_ProcessModifiedFileKeepsPage(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)
	first, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)

	// Given: new content with a newer time
	env.write(t, "a.md", "- hello\n- world\n", mtime0.Add(time.Minute))

	// When
	out, err := env.pipeline.Process(ctx, path)

	// Then: same page, replaced blocks, fanned out as an update
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)
	assert.Equal(t, first.PageID, out.PageID)

	page, err := env.repo.FindByID(ctx, out.PageID)
	require.NoError(t, err)
	assert.Equal(t, 2, page.BlockCount())
	assert.Equal(t, []string{
		"index:" + string(first.PageID),
		"update:" + string(first.PageID),
	}, env.target.Calls())
}

func TestPipeline_RenameKeepsPage(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	oldPath := env.write(t, "a.md", "- hello\n", mtime0)
	first, err := env.pipeline.Process(ctx, oldPath)
	require.NoError(t, err)

	// Given: the file is moved, size and time unchanged
	newPath := filepath.Join(env.root, "pages", "b.md")
	require.NoError(t, os.Rename(oldPath, newPath))
	require.NoError(t, os.Chtimes(newPath, mtime0, mtime0))

	// When
	out, err := env.pipeline.Process(ctx, newPath)

	// Then: the mapping moved in place and no index was touched
	require.NoError(t, err)
	assert.Equal(t, ActionRenamed, out.Action)
	assert.Equal(t, first.PageID, out.PageID)
	assert.Len(t, env.target.Calls(), 1)

	m, err := env.pipeline.Ledger().FindByPath(ctx, newPath)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, first.PageID, m.PageID)

	old, err := env.pipeline.Ledger().FindByPath(ctx, oldPath)
	require.NoError(t, err)
	assert.Nil(t, old)

	// And: the late delete event for the old path is a no-op
	removed, err := env.pipeline.Remove(ctx, oldPath)
	require.NoError(t, err)
	assert.Equal(t, ActionUntracked, removed.Action)
	assert.Len(t, env.target.Calls(), 1)
}

func TestPipeline_CopyIsNotRename(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	a := env.write(t, "a.md", "- hello\n", mtime0)
	first, err := env.pipeline.Process(ctx, a)
	require.NoError(t, err)

	// Given: an identical copy while the original still exists
	b := env.write(t, "b.md", "- hello\n", mtime0)

	// When
	out, err := env.pipeline.Process(ctx, b)

	// Then: a new page
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.NotEqual(t, first.PageID, out.PageID)
}

func TestPipeline_ProcessMissingFile(t *testing.T) {
	env := newPipelineEnv(t)

	_, err := env.pipeline.Process(context.Background(), filepath.Join(env.root, "pages", "nope.md"))

	require.Error(t, err)
	assert.Equal(t, amerrors.CategoryFileAccess, amerrors.GetCategory(err))
	assert.Empty(t, env.target.Calls())
}

func TestPipeline_ProcessDirectoryIsIgnored(t *testing.T) {
	env := newPipelineEnv(t)

	out, err := env.pipeline.Process(context.Background(), filepath.Join(env.root, "pages"))

	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, out.Action)
}

func TestPipeline_ProcessMalformedOutline(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	// Given: the first line is indented
	path := env.write(t, "a.md", "  - orphan\n", mtime0)

	// When
	_, err := env.pipeline.Process(ctx, path)

	// Then: nothing is stored
	require.Error(t, err)
	n, cerr := env.repo.Count(ctx)
	require.NoError(t, cerr)
	assert.Zero(t, n)
	assert.Empty(t, env.target.Calls())
}

func TestPipeline_Remove(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)
	first, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	// When
	out, err := env.pipeline.Remove(ctx, path)

	// Then: gone from every store
	require.NoError(t, err)
	assert.Equal(t, ActionDeleted, out.Action)
	assert.Equal(t, first.PageID, out.PageID)
	assert.True(t, out.Report.OK())

	page, err := env.repo.FindByID(ctx, first.PageID)
	require.NoError(t, err)
	assert.Nil(t, page)
	m, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "delete:"+string(first.PageID), env.target.Calls()[1])
}

func TestPipeline_RemoveUntracked(t *testing.T) {
	env := newPipelineEnv(t)

	out, err := env.pipeline.Remove(context.Background(), filepath.Join(env.root, "pages", "never.md"))

	require.NoError(t, err)
	assert.Equal(t, ActionUntracked, out.Action)
	assert.Empty(t, env.target.Calls())
}

func TestPipeline_FanOutFailureIsReported(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	env.target.setErr(assert.AnError)
	path := env.write(t, "a.md", "- hello\n", mtime0)

	// When
	out, err := env.pipeline.Process(ctx, path)

	// Then: the structured store still has the page
	require.NoError(t, err)
	assert.False(t, out.Report.OK())
	page, err := env.repo.FindByID(ctx, out.PageID)
	require.NoError(t, err)
	assert.NotNil(t, page)
}

func TestPipeline_FailedFanOutIsRetried(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)

	// Given: a first pass whose index call failed
	env.target.setErr(assert.AnError)
	first, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)
	require.False(t, first.Report.OK())

	m, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.IsPending(), "the signature is held back until every index has the page")

	// When: the target recovers and the unchanged file is seen again
	env.target.setErr(nil)
	second, err := env.pipeline.Process(ctx, path)

	// Then: the page is sent again under the same id and the mapping settles
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.PageID, second.PageID)
	assert.True(t, second.Report.OK())
	assert.Equal(t, []string{
		"index:" + string(first.PageID),
		"update:" + string(first.PageID),
	}, env.target.Calls())

	m, err = env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	assert.False(t, m.IsPending())
	assert.True(t, m.ModifiedAt.Equal(mtime0))

	// And: a later touch is a no-op again
	later := mtime0.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	third, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, third.Action)
	assert.Len(t, env.target.Calls(), 2)
}

func TestPipeline_FailedFanOutOnTouchIsRetried(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	path := env.write(t, "a.md", "- hello\n", mtime0)
	env.target.setErr(assert.AnError)
	_, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)

	// Given: the target recovered and the file was only touched
	env.target.setErr(nil)
	later := mtime0.Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	// When
	out, err := env.pipeline.Process(ctx, path)

	// Then: the touch does not hide the missing index entry
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)
	assert.Len(t, env.target.Calls(), 2)
}

func TestPipeline_Reindex(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	out, err := env.pipeline.Process(ctx, env.write(t, "a.md", "- hello\n", mtime0))
	require.NoError(t, err)

	report, err := env.pipeline.Reindex(ctx, out.PageID)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Contains(t, env.target.Calls(), "update:"+string(out.PageID))

	_, err = env.pipeline.Reindex(ctx, "page-missing")
	assert.Equal(t, amerrors.ErrCodeNotFound, amerrors.GetCode(err))

	env.target.setErr(assert.AnError)
	_, err = env.pipeline.Reindex(ctx, out.PageID)
	assert.Error(t, err)
}

func TestConsistencyChecker_CheckAndRepair(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	// Given: a vanished file and an unmapped page
	gone := env.write(t, "gone.md", "- bye\n", mtime0)
	vanished, err := env.pipeline.Process(ctx, gone)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	kept := env.write(t, "kept.md", "- stay\n", mtime0)
	_, err = env.pipeline.Process(ctx, kept)
	require.NoError(t, err)

	orphan := domain.NewPage("page-orphan", "orphan")
	require.NoError(t, env.repo.Save(ctx, orphan))

	checker := NewConsistencyChecker(env.pipeline)

	// When
	result, err := checker.Check(ctx)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	require.Len(t, result.Inconsistencies, 2)
	byType := map[InconsistencyType]Inconsistency{}
	for _, issue := range result.Inconsistencies {
		byType[issue.Type] = issue
	}
	assert.Equal(t, vanished.PageID, byType[InconsistencyVanishedFile].PageID)
	assert.Equal(t, gone, byType[InconsistencyVanishedFile].Path)
	assert.Equal(t, domain.PageID("page-orphan"), byType[InconsistencyOrphanPage].PageID)

	// When: repairing
	require.NoError(t, checker.Repair(ctx, result.Inconsistencies))

	// Then: only the live page remains
	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Inconsistencies)
	assert.Equal(t, 1, after.Checked)
	assert.Contains(t, env.target.Calls(), "delete:page-orphan")
	assert.Contains(t, env.target.Calls(), "delete:"+string(vanished.PageID))
}

// newAuditedEnv is a pipeline whose only target can be audited. Its ledger
// lives apart from the repository, so a mapping can outlive its page.
func newAuditedEnv(t *testing.T) (*pipelineEnv, *auditingIndexer) {
	t.Helper()
	env := newPipelineEnv(t)
	audited := newAuditingIndexer("vector")
	coord := NewCoordinator()
	coord.Register(audited)
	env.pipeline = NewPipeline(env.repo, ledger.New(ledger.NewMemoryStore()), coord)
	return env, audited
}

func TestConsistencyChecker_IndexDrift(t *testing.T) {
	ctx := context.Background()
	env, audited := newAuditedEnv(t)

	// Given: an indexed page the target lost, as after a crash before save
	out, err := env.pipeline.Process(ctx, env.write(t, "a.md", "- hello\n", mtime0))
	require.NoError(t, err)
	audited.lose(out.PageID)
	checker := NewConsistencyChecker(env.pipeline)

	// When
	result, err := checker.Check(ctx)

	// Then: the drift names the target
	require.NoError(t, err)
	require.Len(t, result.Inconsistencies, 1)
	issue := result.Inconsistencies[0]
	assert.Equal(t, InconsistencyIndexDrift, issue.Type)
	assert.Equal(t, out.PageID, issue.PageID)
	assert.Equal(t, []string{"vector"}, issue.Targets)
	assert.Equal(t, 1, result.Count(InconsistencyIndexDrift))

	// When: repairing
	require.NoError(t, checker.Repair(ctx, result.Inconsistencies))

	// Then: the page is re-sent and the target flushed
	assert.Equal(t, "update:"+string(out.PageID), audited.Calls()[len(audited.Calls())-1])
	assert.Equal(t, 1, audited.Flushes())
	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Inconsistencies)
}

func TestConsistencyChecker_DanglingMapping(t *testing.T) {
	ctx := context.Background()
	env, audited := newAuditedEnv(t)

	// Given: a mapping whose page was deleted behind the ledger's back
	path := env.write(t, "a.md", "- hello\n", mtime0)
	out, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.Ledger().Upsert(ctx, &ledger.Mapping{
		Path: filepath.Join(env.root, "pages", "ghost.md"), PageID: "page-ghost",
		ModifiedAt: mtime0, Size: 3,
	}))
	checker := NewConsistencyChecker(env.pipeline)

	// When
	result, err := checker.Check(ctx)

	// Then
	require.NoError(t, err)
	dangling := result.Only(InconsistencyDanglingMapping)
	require.Len(t, dangling, 1)
	assert.Equal(t, domain.PageID("page-ghost"), dangling[0].PageID)
	assert.Zero(t, result.Count(InconsistencyVanishedFile), "a dangling mapping is not also reported as vanished")

	// When: repairing
	require.NoError(t, checker.Repair(ctx, result.Inconsistencies))

	// Then: the mapping is gone and the live page untouched
	m, err := env.pipeline.Ledger().FindByPath(ctx, dangling[0].Path)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Contains(t, audited.Calls(), "delete:page-ghost")
	live, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, out.PageID, live.PageID)
}

func TestConsistencyChecker_DanglingMappingWithFileIsReindexed(t *testing.T) {
	ctx := context.Background()
	env, _ := newAuditedEnv(t)

	// Given: a file whose stored page is gone
	path := env.write(t, "a.md", "- hello\n", mtime0)
	out, err := env.pipeline.Process(ctx, path)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.Ledger().Upsert(ctx, &ledger.Mapping{
		Path: path, PageID: "page-lost", ModifiedAt: mtime0, Size: 8,
	}))
	_, err = env.repo.Delete(ctx, out.PageID)
	require.NoError(t, err)

	checker := NewConsistencyChecker(env.pipeline)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count(InconsistencyDanglingMapping))

	// When
	require.NoError(t, checker.Repair(ctx, result.Only(InconsistencyDanglingMapping)))

	// Then: the file is indexed again under a new page
	m, err := env.pipeline.Ledger().FindByPath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotEqual(t, domain.PageID("page-lost"), m.PageID)
	page, err := env.repo.FindByID(ctx, m.PageID)
	require.NoError(t, err)
	assert.NotNil(t, page)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "created", ActionCreated.String())
	assert.Equal(t, "renamed", ActionRenamed.String())
	assert.Equal(t, "untracked", ActionUntracked.String())
	assert.Equal(t, "unknown", Action(99).String())
	assert.Equal(t, "orphan_page", InconsistencyOrphanPage.String())
	assert.Equal(t, "dangling_mapping", InconsistencyDanglingMapping.String())
	assert.Equal(t, "index_drift", InconsistencyIndexDrift.String())
}
