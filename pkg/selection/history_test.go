package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectionDeduplicates(t *testing.T) {
	sel := New("a", "", "b", "a", "c")
	assert.Equal(t, Selection{"a", "b", "c"}, sel)
	assert.True(t, New().IsEmpty())
}

func TestPush(t *testing.T) {
	h := NewHistory()
	assert.Equal(t, StateEmpty, h.State())

	assert.False(t, h.Push(New()), "empty selections are ignored")
	assert.Equal(t, 0, h.Len())

	assert.True(t, h.Push(New("a")))
	assert.True(t, h.Push(New("b", "c")))
	assert.False(t, h.Push(New("b", "c")), "duplicate of last is ignored")

	assert.Equal(t, StateActive, h.State())
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, Selection{"b", "c"}, h.Current())
}

func TestPushClearsFuture(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	h.Push(New("b"))
	h.Push(New("c"))

	_, err := h.Previous()
	require.NoError(t, err)
	_, err = h.Previous()
	require.NoError(t, err)
	assert.Equal(t, Selection{"a"}, h.Current())

	h.Push(New("d"))
	want := []Selection{{"a"}, {"d"}}
	if diff := cmp.Diff(want, h.List()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	_, err = h.Next()
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestPushReplacesEmptyCurrent(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	_, err := h.Unselect("a")
	require.NoError(t, err)

	h.Push(New("b"))
	assert.Equal(t, []Selection{{"b"}}, h.List())
}

func TestSet(t *testing.T) {
	h := NewHistory()
	h.Set(New("a"))
	assert.Equal(t, 1, h.Len())

	h.Set(New("b"))
	assert.Equal(t, 1, h.Len(), "set replaces the current entry")
	assert.Equal(t, Selection{"b"}, h.Current())
}

func TestPreviousRestoresSelection(t *testing.T) {
	h := NewHistory()
	h.Set(New("docs/x.doc.md"))
	h.Push(New("docs/x_out.doc.md"))

	prev, err := h.Previous()
	require.NoError(t, err)
	assert.Equal(t, Selection{"docs/x.doc.md"}, prev)
	assert.Equal(t, Selection{"docs/x.doc.md"}, h.Current())

	_, err = h.Previous()
	assert.ErrorIs(t, err, ErrNoHistory)

	next, err := h.Next()
	require.NoError(t, err)
	assert.Equal(t, Selection{"docs/x_out.doc.md"}, next)
}

func TestPreviousN(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	h.Push(New("b"))
	h.Push(New("c"))

	sels, err := h.PreviousN(2)
	require.NoError(t, err)
	assert.Equal(t, []Selection{{"b"}, {"c"}}, sels)

	_, err = h.PreviousN(4)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestTruncate(t *testing.T) {
	h := NewHistory(WithMax(3))
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		h.Push(New(p))
	}
	assert.Equal(t, []Selection{{"c"}, {"d"}, {"e"}}, h.List())
	assert.Equal(t, 2, h.CurrentIndex())
}

func TestRemove(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	h.Push(New("a", "b"))
	h.Push(New("b"))
	h.Push(New("c"))
	_, err := h.Previous()
	require.NoError(t, err)
	assert.Equal(t, Selection{"b"}, h.Current())

	h.Remove("b")

	assert.Equal(t, []Selection{{"a"}, {"a"}, {"c"}}, h.List())
	assert.Equal(t, Selection{"a"}, h.Current())
}

func TestReplace(t *testing.T) {
	h := NewHistory()
	h.Push(New("a", "b"))
	h.Push(New("b"))
	h.Replace("b", ".kw/archive/b")

	assert.Equal(t, []Selection{{"a", ".kw/archive/b"}, {".kw/archive/b"}}, h.List())
}

func TestCurrentIsACopy(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	cur := h.Current()
	cur[0] = "changed"
	assert.Equal(t, Selection{"a"}, h.Current())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings", "selection.yml")

	h := Load(path)
	assert.Equal(t, StateEmpty, h.State())
	h.Push(New("a"))
	h.Push(New("b", "c"))
	_, err := h.Previous()
	require.NoError(t, err)
	require.NoError(t, h.Save())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded := Load(path)
	assert.Equal(t, h.List(), loaded.List())
	assert.Equal(t, Selection{"a"}, loaded.Current())
}

func TestLoadDiscardsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.yml")
	require.NoError(t, os.WriteFile(path, []byte("history: [[[not yaml"), 0644))

	h := Load(path)
	assert.Equal(t, 0, h.Len())
	assert.FileExists(t, path+".bad")

	h.Push(New("a"))
	require.NoError(t, h.Save())
	assert.Equal(t, Selection{"a"}, Load(path).Current())
}

func TestLoadFixesInvalidIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.yml")
	require.NoError(t, os.WriteFile(path, []byte("current_index: 7\nhistory:\n  - [a]\n  - [b]\n"), 0644))

	h := Load(path)
	assert.Equal(t, 1, h.CurrentIndex())
	assert.Equal(t, Selection{"b"}, h.Current())
}

func TestFilter(t *testing.T) {
	h := NewHistory()
	h.Push(New("keep", "gone"))
	h.Push(New("gone"))

	missing := h.Filter(func(p string) bool { return p != "gone" })
	assert.Equal(t, []string{"gone"}, missing)
	assert.Equal(t, []Selection{{"keep"}}, h.List())
	assert.Equal(t, Selection{"keep"}, h.Current())
}

func TestClear(t *testing.T) {
	h := NewHistory()
	h.Push(New("a"))
	h.Clear()
	assert.Equal(t, StateEmpty, h.State())
	assert.Empty(t, h.List())
}
