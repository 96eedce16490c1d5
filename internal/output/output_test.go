package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/importer"
	"github.com/Aman-CERP/blockindex/internal/query"
	"github.com/Aman-CERP/blockindex/internal/store"
	"github.com/Aman-CERP/blockindex/internal/syncer"
)

func TestWriter_StatusLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("📂", "Found %d files", 3)
	w.Status("", "indented")
	w.Successf("done")
	w.Warningf("careful")
	w.Errorf("failed: %s", "x")

	assert.Equal(t, "📂 Found 3 files\n   indented\n✅ done\n⚠️  careful\n❌ failed: x\n", buf.String())
}

func TestWriter_Hits_Text(t *testing.T) {
	// Given: a nested hit
	buf := &bytes.Buffer{}
	hits := []engine.Hit{{
		Title:   "Reading",
		Content: "Soil guide",
		Path:    []string{"Gardening notes"},
		Score:   1.5,
	}}

	// When: printing
	require.NoError(t, New(buf).Hits("soil", hits))

	// Then: the hit is indented under its ancestors
	assert.Equal(t, "🔍 1 results for \"soil\"\n\n1. Reading  (1.500)\n   Gardening notes\n     Soil guide\n", buf.String())
}

func TestWriter_Hits_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).Hits("nothing", nil))
	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestWriter_Hits_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewJSON(buf).Hits("q", []engine.Hit{{Title: "A", BlockID: "b1"}}))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0]["title"])
	assert.Equal(t, "b1", out[0]["block_id"])
}

func TestWriter_Connections(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.Connections("https://x.com", nil))
	require.NoError(t, w.Connections("https://x.com", []store.PageConnection{
		{Title: "Ideas", BlockIDs: []domain.BlockID{"b1", "b2"}},
	}))

	assert.Contains(t, buf.String(), "No pages mention https://x.com")
	assert.Contains(t, buf.String(), "1 pages mention https://x.com")
	assert.Contains(t, buf.String(), "Ideas (2 blocks)")
}

func TestWriter_LinksAndReferences(t *testing.T) {
	// Given: a link annotated by a tag and a reference near a URL
	tag, err := domain.NewTagReference("later")
	require.NoError(t, err)
	link, err := domain.NewLinkReference("Ideas")
	require.NoError(t, err)
	u := domain.MustURL("https://x.com/a")

	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing both views
	require.NoError(t, w.Links(&query.PageLinks{Title: "Reading", Links: []domain.URLContext{
		{URL: u, DescendantRefs: []domain.PageReference{tag}},
	}}))
	require.NoError(t, w.References(&query.PageReferences{Title: "Reading", References: []domain.ReferenceContext{
		{Reference: link, AncestorURLs: []domain.URL{u}},
	}}))

	// Then: context is shown inline
	out := buf.String()
	assert.Contains(t, out, "Reading: 1 links")
	assert.Contains(t, out, "https://x.com/a  #later")
	assert.Contains(t, out, "Reading: 1 references")
	assert.Contains(t, out, "[[Ideas]]  (1 urls nearby)")
}

func TestWriter_SyncSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary *syncer.SyncSummary
		want    []string
	}{
		{
			name:    "up to date",
			summary: &syncer.SyncSummary{Unchanged: 4},
			want:    []string{"Up to date (4 files)"},
		},
		{
			name: "changes and failures",
			summary: &syncer.SyncSummary{
				Created: 1, Deleted: 2, Errors: 1,
				Failures: []importer.Failure{{Path: "pages/bad.md", Reason: "bad indent"}},
			},
			want: []string{"1 created", "2 deleted", "❌ pages/bad.md: bad indent"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, New(buf).SyncSummary(tt.summary))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
