package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()

	idx, err := index.Open(filepath.Join(root, ControlDir, "index", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	j, err := journal.Open(filepath.Join(root, ControlDir, "provenance.jsonl"))
	require.NoError(t, err)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(root, idx, j, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	return s
}

func saveDoc(t *testing.T, s *Store, title, body string) *models.Item {
	t.Helper()
	item, err := s.Save(&models.Item{Type: models.TypeDoc, Format: models.FormatMarkdown, Title: title, Body: body})
	require.NoError(t, err)
	return item
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	saved := saveDoc(t, s, "Meeting Notes", "# Agenda\n\n- one\n- two\n")
	assert.Equal(t, "docs/meeting_notes.doc.md", saved.Path)
	assert.Equal(t, models.StateInWorkspace, saved.State)
	assert.True(t, models.IsIdentity(saved.Identity))

	loaded, err := s.Load(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, saved.Identity, loaded.Identity)
	assert.Equal(t, saved.Body, loaded.Body)
	assert.Equal(t, "Meeting Notes", loaded.Title)
	assert.False(t, loaded.IsStale())

	byIdentity, err := s.Load(saved.Identity)
	require.NoError(t, err)
	assert.Equal(t, saved.Path, byIdentity.Path)

	byAbs, err := s.Load(s.Abs(saved.Path))
	require.NoError(t, err)
	assert.Equal(t, saved.Path, byAbs.Path)
}

func TestSaveUntitledNonASCII(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(&models.Item{Body: strings.Repeat("日本語", 30)})
	require.NoError(t, err)
	assert.Len(t, []rune(saved.Title), 64)

	loaded, err := s.Load(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, saved.Title, loaded.Title)
	assert.Equal(t, saved.Identity, loaded.Identity)
}

func TestSaveKeepsTransientState(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(&models.Item{Title: "Step", Body: "intermediate", State: models.StateTransient})
	require.NoError(t, err)
	assert.Equal(t, models.StateTransient, saved.State)

	loaded, err := s.Load(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, models.StateTransient, loaded.State)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	saveDoc(t, s, "Clean", "body")

	entries, err := os.ReadDir(s.Abs("docs"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestPathDisambiguation(t *testing.T) {
	s := newTestStore(t)

	first := saveDoc(t, s, "Notes", "first body")
	second := saveDoc(t, s, "Notes", "second body")
	third := saveDoc(t, s, "Notes", "third body")

	assert.Equal(t, "docs/notes.doc.md", first.Path)
	assert.Equal(t, "docs/notes__1.doc.md", second.Path)
	assert.Equal(t, "docs/notes__2.doc.md", third.Path)

	for _, want := range []*models.Item{first, second, third} {
		got, err := s.Load(want.Path)
		require.NoError(t, err)
		assert.Equal(t, want.Body, got.Body)
		assert.Equal(t, "Notes", got.Title)
	}
}

func TestSaveInPlace(t *testing.T) {
	s := newTestStore(t)
	saved := saveDoc(t, s, "Draft", "v1")

	saved.Body = "v2"
	updated, err := s.Save(saved)
	require.NoError(t, err)
	assert.Equal(t, saved.Path, updated.Path)
	assert.NotEqual(t, saved.Identity, updated.Identity)
	assert.Equal(t, saved.Created, updated.Created)
}

func TestLoadDetectsOutsideEdits(t *testing.T) {
	s := newTestStore(t)
	saved := saveDoc(t, s, "Edited", "original")

	data, err := os.ReadFile(s.Abs(saved.Path))
	require.NoError(t, err)
	edited := strings.Replace(string(data), "original", "changed by hand", 1)
	require.NoError(t, os.WriteFile(s.Abs(saved.Path), []byte(edited), 0644))

	loaded, err := s.Load(saved.Path)
	require.NoError(t, err)
	assert.True(t, loaded.IsStale())
	assert.Equal(t, saved.Identity, loaded.RecordedIdentity)
	assert.NotEqual(t, saved.Identity, loaded.Identity)

	// The index follows the new content.
	rel, ok := s.FindByIdentity(loaded.Identity)
	require.True(t, ok)
	assert.Equal(t, saved.Path, rel)
}

func TestLoadErrors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("docs/missing.doc.md")
	var notFound *models.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = s.Load("sha256:0000")
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, os.MkdirAll(s.Abs("docs"), 0755))
	require.NoError(t, os.WriteFile(s.Abs("docs/bad.doc.md"), []byte("---\ntitle: [oops\n---\n\nbody"), 0644))
	_, err = s.Load("docs/bad.doc.md")
	var malformed *models.MalformedMetadataError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "docs/bad.doc.md", malformed.Path)
}

func TestLoadWithoutHeader(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Abs("docs"), 0755))
	require.NoError(t, os.WriteFile(s.Abs("docs/plain_file.txt"), []byte("just text"), 0644))

	item, err := s.Load("docs/plain_file.txt")
	require.NoError(t, err)
	assert.Equal(t, models.TypeDoc, item.Type)
	assert.Equal(t, models.FormatPlaintext, item.Format)
	assert.Equal(t, "Plain File", item.Title)
	assert.Equal(t, "just text", item.Body)
}

func TestBinaryItemSidecar(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(&models.Item{
		Type:   models.TypeResource,
		Format: models.FormatMP3,
		Title:  "Interview",
		Body:   "\x00\x01binary\xff",
	})
	require.NoError(t, err)
	assert.Equal(t, "resources/interview.resource.mp3", saved.Path)
	assert.FileExists(t, s.Abs(saved.Path)+SidecarSuffix)

	raw, err := os.ReadFile(s.Abs(saved.Path))
	require.NoError(t, err)
	assert.Equal(t, saved.Body, string(raw))

	loaded, err := s.Load(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, "Interview", loaded.Title)
	assert.Equal(t, saved.Identity, loaded.Identity)

	items, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1, "sidecar must not be listed as an item")
}

func TestArchiveAndUnarchive(t *testing.T) {
	s := newTestStore(t)
	saved := saveDoc(t, s, "Old Idea", "keep me around")

	archived, err := s.Archive(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, ".kw/archive/docs/old_idea.doc.md", archived)
	assert.NoFileExists(t, s.Abs(saved.Path))

	item, err := s.Load(archived)
	require.NoError(t, err)
	assert.Equal(t, models.StateArchived, item.State)
	assert.Equal(t, saved.Identity, item.Identity, "archiving must not change identity")
	assert.False(t, item.IsStale())

	items, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.List(ListOptions{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = s.Archive(archived)
	var invalid *models.InvalidInputError
	assert.ErrorAs(t, err, &invalid)

	// A new item with the same title must not collide with the archived copy.
	again := saveDoc(t, s, "Old Idea", "different")
	assert.Equal(t, "docs/old_idea__1.doc.md", again.Path)

	restored, err := s.Unarchive(archived)
	require.NoError(t, err)
	assert.Equal(t, saved.Path, restored)

	item, err = s.Load(restored)
	require.NoError(t, err)
	assert.Equal(t, models.StateInWorkspace, item.State)
}

func TestListFiltersAndSorting(t *testing.T) {
	s := newTestStore(t)
	saveDoc(t, s, "Beta", "b")
	saveDoc(t, s, "Alpha", "a")
	_, err := s.Save(&models.Item{Type: models.TypeConcept, Format: models.FormatMarkdown, Title: "Gamma", Body: "g"})
	require.NoError(t, err)

	items, err := s.List(ListOptions{Types: []models.ItemType{models.TypeDoc}, SortBy: SortByTitle})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Title)
	assert.Equal(t, "Beta", items[1].Title)

	items, err = s.List(ListOptions{Pattern: "concepts/**"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Gamma", items[0].Title)

	items, err = s.List(ListOptions{SortBy: SortByModified, Reverse: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Gamma", items[0].Title)

	recent, err := s.MostRecent()
	require.NoError(t, err)
	assert.Equal(t, "Gamma", recent.Title)

	all, err := s.List(ListOptions{SortBy: SortByPath})
	require.NoError(t, err)
	groups := GroupItems(all, GroupByType)
	require.Len(t, groups, 2)
	assert.Equal(t, "concept", groups[0].Key)
	assert.Equal(t, "doc", groups[1].Key)
	assert.Len(t, groups[1].Items, 2)
}

func TestWalkIsRestartable(t *testing.T) {
	s := newTestStore(t)
	saveDoc(t, s, "One", "1")

	walk := s.Walk(ListOptions{})
	count := func() int {
		n := 0
		for item, err := range walk {
			require.NoError(t, err)
			require.NotNil(t, item)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())

	saveDoc(t, s, "Two", "2")
	assert.Equal(t, 2, count())
}

func TestListSkipsMalformed(t *testing.T) {
	s := newTestStore(t)
	saveDoc(t, s, "Good", "fine")
	require.NoError(t, os.WriteFile(s.Abs("docs/bad.doc.md"), []byte("---\ntitle: [oops\n---\n\nbody"), 0644))

	items, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestImportURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Import(ctx, "https://Example.com/articles/go/?utm_source=x#intro")
	require.NoError(t, err)
	assert.Equal(t, models.TypeResource, first.Type)
	assert.Equal(t, models.FormatURL, first.Format)
	assert.Equal(t, "https://example.com/articles/go", first.URL)
	assert.Equal(t, "resources/example_com_articles_go.resource.yml", first.Path)

	second, err := s.Import(ctx, "https://example.com/articles/go")
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path, "re-importing a URL must return the existing item")

	loaded, err := s.Load(first.Path)
	require.NoError(t, err)
	assert.Equal(t, models.FormatURL, loaded.Format)
	assert.Equal(t, first.Identity, loaded.Identity)
}

func TestImportFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "field_notes.md")
	require.NoError(t, os.WriteFile(src, []byte("Some notes\n\nMore notes\n"), 0644))

	item, err := s.Import(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "docs/field_notes.doc.md", item.Path)
	assert.Equal(t, "Field Notes", item.Title)
	assert.Equal(t, "Some notes\n\nMore notes\n", item.Body)

	again, err := s.Import(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, item.Path, again.Path)

	_, err = s.Import(ctx, filepath.Join(t.TempDir(), "nope.md"))
	var notFound *models.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestImportAdoptsWorkspaceFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Abs("docs"), 0755))
	require.NoError(t, os.WriteFile(s.Abs("docs/dropped_in.doc.md"), []byte("hello"), 0644))

	item, err := s.Import(context.Background(), s.Abs("docs/dropped_in.doc.md"))
	require.NoError(t, err)
	assert.Equal(t, "docs/dropped_in.doc.md", item.Path)

	data, err := os.ReadFile(s.Abs(item.Path))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\n"), "adopted file should gain a header")
}

func TestReindex(t *testing.T) {
	s := newTestStore(t)
	first := saveDoc(t, s, "First", "1")
	saveDoc(t, s, "Second", "2")
	_, err := s.Archive(first.Path)
	require.NoError(t, err)

	require.NoError(t, s.Index().Reset())
	require.NoError(t, s.EnsureIndexed(context.Background()))

	n, err := s.Index().Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rel, ok := s.FindByIdentity(first.Identity)
	require.True(t, ok)
	assert.True(t, IsArchived(rel))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Reindex(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM:443/a/", "https://example.com/a"},
		{"http://example.com:8080/a?b=2&a=1", "http://example.com:8080/a?a=1&b=2"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com/x?utm_medium=mail&id=7#frag", "https://example.com/x?id=7"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
