package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/precondition"
	"github.com/grovetools/kw/pkg/provenance"
	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/store"
)

const lecture = "Welcome to the lecture on rivers today. Rivers carry water from the mountains. " +
	"They shape valleys over many thousands of years. Floods deposit rich soil on the plains. " +
	"Cities often grow along their banks. Trade moves easily by boat. " +
	"Pollution is a growing concern everywhere. Thanks for listening to this."

type fakeTranscriber struct {
	calls int
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ *models.Item, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

type env struct {
	store    *store.Store
	history  *selection.History
	dispatch *action.Dispatcher
	tracker  *provenance.Tracker
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	root := t.TempDir()
	idx, err := index.Open(filepath.Join(root, store.ControlDir, "index", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	j, err := journal.Open(filepath.Join(root, store.ControlDir, "provenance.jsonl"))
	require.NoError(t, err)
	st, err := store.New(root, idx, j)
	require.NoError(t, err)

	reg := action.NewRegistry(precondition.Builtins())
	require.NoError(t, RegisterBuiltins(reg, opts...))

	history := selection.NewHistory()
	return &env{
		store:    st,
		history:  history,
		dispatch: action.NewDispatcher(reg, st, provenance.NewCache(st, j, nil), history),
		tracker:  provenance.NewTracker(st, nil),
	}
}

func (e *env) save(t *testing.T, item *models.Item) *models.Item {
	t.Helper()
	saved, err := e.store.Save(item)
	require.NoError(t, err)
	return saved
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple",
			text: "The cat sat on the mat. The dog barked at it loudly!",
			want: []string{"The cat sat on the mat.", "The dog barked at it loudly!"},
		},
		{
			name: "short sentences merge",
			text: "Hi there. Okay. This is a longer sentence here.",
			want: []string{"Hi there. Okay.", "This is a longer sentence here."},
		},
		{
			name: "abbreviations with capitals do not split",
			text: "We met Dr. Smith in the U.S. yesterday afternoon. Then we left.",
			want: []string{"We met Dr. Smith in the U.S. yesterday afternoon.", "Then we left."},
		},
		{
			name: "quoted ending",
			text: "She said \"come over here now.\" And so we did go.",
			want: []string{"She said \"come over here now.\"", "And so we did go."},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestReflow(t *testing.T) {
	body := "# Title\n\n" + lecture + "\n\n- one\n- two\n"
	got := Reflow(body, 3)
	paras := Paragraphs(got)

	require.Len(t, paras, 5)
	assert.Equal(t, "# Title", paras[0])
	assert.True(t, strings.HasPrefix(paras[1], "Welcome"))
	assert.True(t, strings.HasSuffix(paras[3], "listening to this."))
	assert.Equal(t, "- one\n- two", paras[4])
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><title>x</title><style>p{}</style></head><body>
<h1>Rivers</h1>
<div><p>Water  flows
downhill.</p><script>alert(1)</script></div>
<ul><li>Nile</li><li>Amazon</li></ul>
</body></html>`
	got, err := HTMLToText(html)
	require.NoError(t, err)
	assert.Equal(t, "Rivers\n\nWater flows downhill.\n\nNile\n\nAmazon\n", got)

	got, err = HTMLToText("<span>just inline</span>")
	require.NoError(t, err)
	assert.Equal(t, "just inline\n", got)
}

func TestRenderMarkdown(t *testing.T) {
	got, err := RenderMarkdown("# Hi\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, got, `<h1 id="hi">Hi</h1>`)
	assert.Contains(t, got, "<table>")
}

func TestBuiltinsRegistration(t *testing.T) {
	names := func(specs []*action.Spec) []string {
		var out []string
		for _, s := range specs {
			out = append(out, s.Name)
		}
		return out
	}
	assert.NotContains(t, names(Builtins()), "transcribe")
	assert.Contains(t, names(Builtins(WithTranscriber(&fakeTranscriber{}))), "transcribe")
}

func TestStripHTMLAction(t *testing.T) {
	e := newEnv(t)
	page := e.save(t, &models.Item{Title: "Page", Format: models.FormatHTML, Body: "<p>Hello <b>there</b></p><p>Bye</p>"})

	report, err := e.dispatch.Run(t.Context(), "strip_html", []string{page.Path}, nil)
	require.NoError(t, err)
	out := report.Outputs[0]
	assert.Equal(t, models.FormatPlaintext, out.Format)
	assert.Equal(t, "Hello there\n\nBye\n", out.Body)
	assert.Equal(t, "Page (text)", out.Title)
}

func TestMarkdownToHTMLAction(t *testing.T) {
	e := newEnv(t)
	doc := e.save(t, &models.Item{Title: "Notes", Body: "Some *emphasis*."})

	report, err := e.dispatch.Run(t.Context(), "markdown_to_html", []string{doc.Path}, nil)
	require.NoError(t, err)
	out := report.Outputs[0]
	assert.Equal(t, models.TypeExport, out.Type)
	assert.Equal(t, "exports/notes.export.html", out.Path)
	assert.Contains(t, out.Body, "<em>emphasis</em>")
}

func TestConcatAction(t *testing.T) {
	e := newEnv(t)
	a := e.save(t, &models.Item{Title: "A", Body: "alpha\n"})
	b := e.save(t, &models.Item{Title: "B", Format: models.FormatPlaintext, Body: "beta"})

	report, err := e.dispatch.Run(t.Context(), "concat", []string{a.Path, b.Path}, nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 1)
	assert.Equal(t, "alpha\n\nbeta\n", report.Outputs[0].Body)
	assert.Equal(t, "A and 1 more (combined)", report.Outputs[0].Title)
}

func TestCopyItemsAction(t *testing.T) {
	e := newEnv(t)
	a := e.save(t, &models.Item{Title: "A", Body: "alpha"})

	report, err := e.dispatch.Run(t.Context(), "copy_items", []string{a.Path}, nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 1)
	out := report.Outputs[0]
	assert.Equal(t, a.Identity, out.Identity)
	assert.NotEqual(t, a.Path, out.Path)
}

func TestBreakIntoParagraphsRejectsBadParam(t *testing.T) {
	e := newEnv(t)
	doc := e.save(t, &models.Item{Title: "Notes", Body: lecture})

	_, err := e.dispatch.Run(t.Context(), "break_into_paragraphs", []string{doc.Path}, map[string]string{"sentences": "zero"})
	var ae *models.ActionExecutionError
	require.ErrorAs(t, err, &ae)
	assert.ErrorContains(t, err, "positive integer")
}

func TestTranscribeThenParagraphs(t *testing.T) {
	fake := &fakeTranscriber{text: lecture}
	e := newEnv(t, WithTranscriber(fake))

	media := e.save(t, &models.Item{
		Title:  "River lecture",
		Type:   models.TypeResource,
		Format: models.FormatMP3,
		URL:    "https://example.com/rivers.mp3",
		Body:   "ID3 fake audio",
	})

	e.history.Set(selection.New(media.Path))
	transcript, err := e.dispatch.Run(t.Context(), "transcribe", nil, nil)
	require.NoError(t, err)
	require.Len(t, transcript.Outputs, 1)

	paras, err := e.dispatch.Run(t.Context(), "break_into_paragraphs", nil, map[string]string{"sentences": "4"})
	require.NoError(t, err)
	require.Len(t, paras.Outputs, 1)
	out := paras.Outputs[0]
	assert.Len(t, Paragraphs(out.Body), 2)
	assert.Equal(t, "River lecture (transcription) (in paragraphs)", out.Title)

	chain, err := e.tracker.DerivationChain(out)
	require.NoError(t, err)
	require.Len(t, chain.Ancestors, 2)
	assert.Equal(t, transcript.Outputs[0].Path, chain.Ancestors[0].Item.Path)
	assert.Equal(t, media.Path, chain.Ancestors[1].Item.Path)

	// Re-running the whole pipeline hits the cache at every step.
	e.history.Set(selection.New(media.Path))
	again, err := e.dispatch.Run(t.Context(), "transcribe", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.CacheHits)
	assert.Equal(t, 1, fake.calls)
}

func TestTranscribeRequiresMedia(t *testing.T) {
	e := newEnv(t, WithTranscriber(&fakeTranscriber{text: "x"}))
	doc := e.save(t, &models.Item{Title: "Notes", Body: "text"})

	_, err := e.dispatch.Run(t.Context(), "transcribe", []string{doc.Path}, nil)
	var pe *models.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "is_media_resource", pe.Precondition)
}

func TestTranscriptCache(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeTranscriber{text: "hello"}
	cache := NewTranscriptCache(dir, fake, nil)
	item := &models.Item{URL: "https://example.com/a.mp3"}

	for range 2 {
		got, err := cache.Transcribe(t.Context(), item, "en")
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
	}
	assert.Equal(t, 1, fake.calls)

	_, err := cache.Transcribe(t.Context(), item, "fr")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls, "language is part of the cache key")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	fake.err = errors.New("service down")
	_, err = cache.Transcribe(t.Context(), &models.Item{URL: "https://example.com/b.mp3"}, "")
	assert.ErrorContains(t, err, "service down")
}

func TestCompoundBuiltins(t *testing.T) {
	t.Run("strip_html_to_paragraphs", func(t *testing.T) {
		e := newEnv(t)
		page := e.save(t, &models.Item{Title: "Page", Type: models.TypeResource, Format: models.FormatHTML, Body: "<p>" + lecture + "</p>"})

		report, err := e.dispatch.Run(t.Context(), "strip_html_to_paragraphs", []string{page.Path}, map[string]string{"sentences": "4"})
		require.NoError(t, err)
		require.Len(t, report.Outputs, 1)
		out := report.Outputs[0]
		assert.Equal(t, "Page (text) (in paragraphs)", out.Title)
		assert.Equal(t, models.FormatPlaintext, out.Format)
		assert.Len(t, Paragraphs(out.Body), 2)
		assert.Equal(t, []string{page.Identity}, out.Relations.DerivedFrom)

		items, err := e.store.List(store.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, items, 2, "the stripped text is archived")
	})

	t.Run("add_paragraphs", func(t *testing.T) {
		e := newEnv(t)
		doc := e.save(t, &models.Item{Title: "Notes", Body: lecture})

		report, err := e.dispatch.Run(t.Context(), "add_paragraphs", []string{doc.Path}, map[string]string{"sentences": "4"})
		require.NoError(t, err)
		require.Len(t, report.Outputs, 1)
		out := report.Outputs[0]
		assert.Equal(t, "Notes (add_paragraphs)", out.Title)
		assert.True(t, strings.HasPrefix(out.Body, lecture+"\n\n"), out.Body)
		assert.Len(t, Paragraphs(out.Body), 3)
	})

	t.Run("transcribe_and_format", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.dispatch.Run(t.Context(), "transcribe_and_format", nil, nil)
		var notFound *models.NotFoundError
		require.ErrorAs(t, err, &notFound, "only registered with a transcriber")

		e = newEnv(t, WithTranscriber(&fakeTranscriber{text: lecture}))
		media := e.save(t, &models.Item{
			Title:  "River lecture",
			Type:   models.TypeResource,
			Format: models.FormatMP3,
			URL:    "https://example.com/rivers.mp3",
			Body:   "ID3 fake audio",
		})
		report, err := e.dispatch.Run(t.Context(), "transcribe_and_format", []string{media.Path}, nil)
		require.NoError(t, err)
		out := report.Outputs[0]
		assert.Equal(t, "River lecture (transcription) (in paragraphs)", out.Title)

		chain, err := e.tracker.DerivationChain(out)
		require.NoError(t, err)
		require.Len(t, chain.Ancestors, 1)
		assert.Equal(t, media.Path, chain.Ancestors[0].Item.Path)
	})
}
