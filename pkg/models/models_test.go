package models

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestItemTypeFolder(t *testing.T) {
	tests := []struct {
		itemType ItemType
		want     string
	}{
		{TypeDoc, "docs"},
		{TypeResource, "resources"},
		{TypeConcept, "concepts"},
		{TypeConfig, "configs"},
		{TypeExport, "exports"},
	}

	for _, tt := range tests {
		t.Run(string(tt.itemType), func(t *testing.T) {
			if got := tt.itemType.Folder(); got != tt.want {
				t.Errorf("Folder() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseItemType(t *testing.T) {
	if _, ok := ParseItemType("doc"); !ok {
		t.Error("expected doc to parse")
	}
	if _, ok := ParseItemType("invalid"); ok {
		t.Error("expected invalid type to be rejected")
	}
}

func TestComputeIdentity(t *testing.T) {
	base := &Item{
		Type:   TypeDoc,
		Format: FormatMarkdown,
		Title:  "One",
		Body:   "hello",
	}

	same := base.Clone()
	same.Title = "Another title"
	same.Path = "docs/elsewhere.doc.md"
	same.Modified = time.Now()
	if base.ComputeIdentity() != same.ComputeIdentity() {
		t.Error("identity should not depend on title, path or timestamps")
	}

	tests := []struct {
		name   string
		mutate func(*Item)
	}{
		{"body", func(i *Item) { i.Body = "hello!" }},
		{"format", func(i *Item) { i.Format = FormatPlaintext }},
		{"type", func(i *Item) { i.Type = TypeConcept }},
		{"url", func(i *Item) { i.URL = "https://example.com" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.mutate(other)
			if base.ComputeIdentity() == other.ComputeIdentity() {
				t.Errorf("changing %s should change identity", tt.name)
			}
		})
	}

	if !IsIdentity(base.ComputeIdentity()) {
		t.Error("computed identity should carry the identity prefix")
	}
}

func TestFormatExt(t *testing.T) {
	tests := []struct {
		format Format
		ext    string
		text   bool
	}{
		{FormatMarkdown, "md", true},
		{FormatHTML, "html", true},
		{FormatPlaintext, "txt", true},
		{FormatURL, "yml", true},
		{FormatMP3, "mp3", false},
		{FormatPDF, "pdf", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.Ext(); got != tt.ext {
				t.Errorf("Ext() = %s, want %s", got, tt.ext)
			}
			if got := tt.format.IsText(); got != tt.text {
				t.Errorf("IsText() = %v, want %v", got, tt.text)
			}
		})
	}
}

func TestDisplayTitle(t *testing.T) {
	item := &Item{Format: FormatMarkdown, Body: "# Heading here\n\nbody"}
	if got := item.DisplayTitle(); got != "Heading here" {
		t.Errorf("DisplayTitle() = %q", got)
	}
	item.URL = "https://example.com/a"
	if got := item.DisplayTitle(); got != "https://example.com/a" {
		t.Errorf("DisplayTitle() = %q", got)
	}

	wide := &Item{Format: FormatPlaintext, Body: strings.Repeat("日本語", 30)}
	got := wide.DisplayTitle()
	if !utf8.ValidString(got) {
		t.Errorf("DisplayTitle() = %q, not valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n != 64 {
		t.Errorf("DisplayTitle() has %d runes, want 64", n)
	}
}

func TestActionExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ActionExecutionError{
		Action:   "summarize",
		Failures: []Failure{{Path: "docs/a.doc.md", Err: cause}},
	}
	if !errors.Is(err, cause) {
		t.Error("expected failure cause to be reachable with errors.Is")
	}

	var target *ActionExecutionError
	if !errors.As(error(err), &target) {
		t.Error("expected errors.As to match")
	}
}

func TestNotFoundErrorSuggestions(t *testing.T) {
	err := &NotFoundError{Kind: "action", Ref: "strp_html", Suggestions: []string{"strip_html"}}
	want := "action not found: strp_html (did you mean strip_html?)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
