package actions

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/models"
)

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td, th, dt, dd, figcaption"

// HTMLToText extracts readable text from an HTML fragment or page. Each
// innermost block element becomes one paragraph.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, head").Remove()

	var paras []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			paras = append(paras, text)
		}
	})
	if len(paras) == 0 {
		text := strings.Join(strings.Fields(doc.Text()), " ")
		if text == "" {
			return "", nil
		}
		paras = []string{text}
	}
	return strings.Join(paras, "\n\n") + "\n", nil
}

// StripHTML converts an HTML body to plain text.
func StripHTML() *action.Spec {
	return &action.Spec{
		Name:          "strip_html",
		Description:   "Strip HTML tags, keeping the text as paragraphs.",
		Preconditions: []string{"has_html_body"},
		Arity:         action.Single,
		Version:       "1",
		Body: func(_ context.Context, in action.Input) ([]models.Payload, error) {
			item := in.Item()
			text, err := HTMLToText(item.Body)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) == "" {
				return nil, fmt.Errorf("no text found in %s", item.Path)
			}
			return []models.Payload{{
				Type:   models.TypeDoc,
				Format: models.FormatPlaintext,
				Title:  item.Title + " (text)",
				URL:    item.URL,
				Body:   text,
			}}, nil
		},
	}
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// RenderMarkdown converts markdown to an HTML fragment.
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// MarkdownToHTML renders a markdown document as an HTML export.
func MarkdownToHTML() *action.Spec {
	return &action.Spec{
		Name:          "markdown_to_html",
		Description:   "Render markdown as an HTML export.",
		Preconditions: []string{"is_markdown"},
		Arity:         action.Single,
		Version:       "1",
		Body: func(_ context.Context, in action.Input) ([]models.Payload, error) {
			item := in.Item()
			html, err := RenderMarkdown(item.Body)
			if err != nil {
				return nil, err
			}
			return []models.Payload{{
				Type:   models.TypeExport,
				Format: models.FormatHTML,
				Title:  item.Title,
				URL:    item.URL,
				Body:   html,
			}}, nil
		},
	}
}
