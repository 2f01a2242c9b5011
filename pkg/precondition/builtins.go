package precondition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/grovetools/kw/pkg/models"
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	bulletPattern  = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+\S`)
)

// Built-in preconditions.
var (
	IsResource  = New("is_resource", func(i *models.Item) bool { return i.Type == models.TypeResource })
	IsConcept   = New("is_concept", func(i *models.Item) bool { return i.Type == models.TypeConcept })
	IsConfig    = New("is_config", func(i *models.Item) bool { return i.Type == models.TypeConfig })
	IsChat      = New("is_chat", func(i *models.Item) bool { return i.Type == models.TypeChat })
	IsURL       = New("is_url", func(i *models.Item) bool { return i.Type == models.TypeResource && i.URL != "" })
	IsMedia     = New("is_media_resource", isMedia)
	HasBody     = New("has_body", hasBody)
	HasTextBody = New("has_text_body", func(i *models.Item) bool {
		return hasBody(i) && in(i.Format, models.FormatPlaintext, models.FormatMarkdown, models.FormatMdHTML)
	})
	HasHTMLBody = New("has_html_body", func(i *models.Item) bool {
		return hasBody(i) && in(i.Format, models.FormatHTML, models.FormatMdHTML)
	})
	IsPlaintext = New("is_plaintext", func(i *models.Item) bool {
		return hasBody(i) && i.Format == models.FormatPlaintext
	})
	IsMarkdown = New("is_markdown", func(i *models.Item) bool {
		return hasBody(i) && in(i.Format, models.FormatMarkdown, models.FormatMdHTML)
	})
	IsHTML = New("is_html", func(i *models.Item) bool {
		return hasBody(i) && i.Format == models.FormatHTML
	})
	IsTextDoc      = Or(IsPlaintext, IsMarkdown).named("is_text_doc")
	IsMarkdownList = New("is_markdown_list", func(i *models.Item) bool {
		return IsMarkdown.Check(i) && len(bulletPattern.FindAllString(i.Body, 2)) >= 2
	})
	HasTimestamps     = New("has_timestamps", hasTimestamps)
	HasManyParagraphs = New("has_many_paragraphs", func(i *models.Item) bool {
		return !i.IsBinary() && strings.Count(i.Body, "\n\n") > 4
	})
	HasLotsOfHTMLTags = New("has_lots_of_html_tags", hasLotsOfHTMLTags)
	HasDivChunks      = New("has_div_chunks", func(i *models.Item) bool {
		doc := parseHTML(i)
		return doc != nil && doc.Find("div.chunk").Length() > 0
	})
)

func (p Precondition) named(name string) Precondition {
	return New(name, p.fn)
}

// Builtins returns an engine holding every built-in precondition.
func Builtins() *Engine {
	e := NewEngine()
	mustRegister(e,
		IsResource, IsConcept, IsConfig, IsChat, IsURL, IsMedia,
		HasBody, HasTextBody, HasHTMLBody,
		IsPlaintext, IsMarkdown, IsHTML, IsTextDoc, IsMarkdownList,
		HasTimestamps, HasManyParagraphs, HasLotsOfHTMLTags, HasDivChunks,
	)
	return e
}

func mustRegister(e *Engine, ps ...Precondition) {
	if err := e.Register(ps...); err != nil {
		panic(fmt.Sprintf("register preconditions: %v", err))
	}
}

func hasBody(i *models.Item) bool {
	return strings.TrimSpace(i.Body) != ""
}

func isMedia(i *models.Item) bool {
	return i.Type == models.TypeResource && (i.Format.IsAudio() || i.Format.IsVideo())
}

// parseHTML returns the body as an HTML document, or nil when the body
// cannot contain markup.
func parseHTML(i *models.Item) *goquery.Document {
	if i.IsBinary() || !strings.Contains(i.Body, "<") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(i.Body))
	if err != nil {
		return nil
	}
	return doc
}

// Timestamps are embedded as <span data-timestamp="12.34">.
func hasTimestamps(i *models.Item) bool {
	doc := parseHTML(i)
	if doc == nil {
		return false
	}
	found := false
	doc.Find("span[data-timestamp]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("data-timestamp")
		_, err := strconv.ParseFloat(v, 64)
		found = err == nil
		return !found
	})
	return found
}

func hasLotsOfHTMLTags(i *models.Item) bool {
	if i.IsBinary() || i.Body == "" {
		return false
	}
	tagFree := htmlTagPattern.ReplaceAllString(i.Body, "")
	tagChars := len(i.Body) - len(tagFree)
	return float64(tagChars) > max(5, float64(len(i.Body))*0.1)
}

func in(f models.Format, formats ...models.Format) bool {
	for _, candidate := range formats {
		if f == candidate {
			return true
		}
	}
	return false
}
