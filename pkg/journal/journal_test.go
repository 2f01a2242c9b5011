package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kw", "provenance.jsonl")
	j, err := Open(path)
	require.NoError(t, err)
	assert.True(t, j.IsEmpty())

	first, err := j.Append(Entry{Kind: KindItemSaved, Path: "docs/a.doc.md", Identity: "sha256:a"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = j.Append(Entry{
		Kind:     KindCachePut,
		CacheKey: "k1",
		Action:   "strip_html",
		Outputs:  []Output{{Identity: "sha256:b", Path: "docs/b.doc.txt"}},
	})
	require.NoError(t, err)
	assert.False(t, j.IsEmpty())

	var got []Entry
	for e, err := range j.Entries() {
		require.NoError(t, err)
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, KindItemSaved, got[0].Kind)
	assert.Equal(t, "docs/a.doc.md", got[0].Path)
	assert.Equal(t, KindCachePut, got[1].Kind)
	assert.Equal(t, "docs/b.doc.txt", got[1].Outputs[0].Path)
	assert.Less(t, got[0].ID, got[1].ID)
}

func TestEntriesSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenance.jsonl")
	j, err := Open(path, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)

	_, err = j.Append(Entry{Kind: KindItemSaved, Path: "docs/a.doc.md"})
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = j.Append(Entry{Kind: KindItemArchived, Path: "docs/a.doc.md"})
	require.NoError(t, err)

	var kinds []Kind
	for e, err := range j.Entries() {
		require.NoError(t, err)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []Kind{KindItemSaved, KindItemArchived}, kinds)
}

func TestEntriesMissingFile(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)

	count := 0
	for range j.Entries() {
		count++
	}
	assert.Zero(t, count)
}
