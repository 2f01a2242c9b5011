package frontmatter

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/kw/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantFM   *Frontmatter
		wantBody string
		wantErr  bool
	}{
		{
			name: "valid frontmatter",
			content: `---
identity: sha256:abc
title: Test Item
type: doc
format: markdown
state: in_workspace
created: 2023-01-01T10:00:00Z
modified: 2023-01-02T11:00:00Z
---

# Test Content

This is the body.`,
			wantFM: &Frontmatter{
				Identity: "sha256:abc",
				Title:    "Test Item",
				Type:     "doc",
				Format:   "markdown",
				State:    "in_workspace",
				Created:  "2023-01-01T10:00:00Z",
				Modified: "2023-01-02T11:00:00Z",
			},
			wantBody: "# Test Content\n\nThis is the body.",
		},
		{
			name:     "no frontmatter",
			content:  "# Just a title\n\nSome content.",
			wantFM:   nil,
			wantBody: "# Just a title\n\nSome content.",
		},
		{
			name: "invalid yaml",
			content: `---
identity: test
title: [invalid
---

Body`,
			wantFM: nil,
			wantBody: `---
identity: test
title: [invalid
---

Body`,
			wantErr: true,
		},
		{
			name: "relations",
			content: `---
identity: sha256:def
title: Derived
type: doc
format: plaintext
created: 2023-01-01T10:00:00Z
modified: 2023-01-01T10:00:00Z
relations:
  derived_from:
    - sha256:abc
  derived_by:
    action: strip_html
---

Content`,
			wantFM: &Frontmatter{
				Identity: "sha256:def",
				Title:    "Derived",
				Type:     "doc",
				Format:   "plaintext",
				Created:  "2023-01-01T10:00:00Z",
				Modified: "2023-01-01T10:00:00Z",
				Relations: &models.Relations{
					DerivedFrom: []string{"sha256:abc"},
					DerivedBy:   &models.DerivedBy{Action: "strip_html"},
				},
			},
			wantBody: "Content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFM, gotBody, err := Parse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(gotFM, tt.wantFM) {
				t.Errorf("Parse() gotFM = %+v, want %+v", gotFM, tt.wantFM)
			}
			if gotBody != tt.wantBody {
				t.Errorf("Parse() gotBody = %q, want %q", gotBody, tt.wantBody)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		fm   *Frontmatter
		want string
	}{
		{
			name: "minimal frontmatter",
			fm: &Frontmatter{
				Identity: "sha256:abc",
				Title:    "Minimal",
				Type:     "doc",
				Format:   "markdown",
				Created:  "2023-01-01T10:00:00Z",
				Modified: "2023-01-01T10:00:00Z",
			},
			want: `---
identity: "sha256:abc"
title: Minimal
type: doc
format: markdown
created: "2023-01-01T10:00:00Z"
modified: "2023-01-01T10:00:00Z"
---`,
		},
		{
			name: "with special characters",
			fm: &Frontmatter{
				Identity: "sha256:abc",
				Title:    "Notes: Special, Characters",
				Type:     "resource",
				Format:   "url",
				URL:      "https://example.com/a?b=c",
				State:    "archived",
				Created:  "2023-01-01T10:00:00Z",
				Modified: "2023-01-01T10:00:00Z",
			},
			want: `---
identity: "sha256:abc"
title: "Notes: Special, Characters"
type: resource
format: url
url: "https://example.com/a?b=c"
state: archived
created: "2023-01-01T10:00:00Z"
modified: "2023-01-01T10:00:00Z"
---`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.fm)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildContentRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	item := &models.Item{
		Type:     models.TypeDoc,
		Format:   models.FormatMarkdown,
		Title:    "Yes",
		Body:     "\nleading newline and trailing\n\n",
		State:    models.StateInWorkspace,
		Created:  created,
		Modified: created,
		Relations: models.Relations{
			DerivedFrom: []string{"sha256:one", "sha256:two"},
			DerivedBy:   &models.DerivedBy{Action: "concat", Params: map[string]string{"sep": "---"}},
		},
		Extra: map[string]any{"language": "en"},
	}
	item.Identity = item.ComputeIdentity()

	content, err := BuildContent(FromItem(item), item.Body)
	if err != nil {
		t.Fatalf("BuildContent() error = %v", err)
	}

	fm, body, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if body != item.Body {
		t.Errorf("body = %q, want %q", body, item.Body)
	}

	got := &models.Item{Body: body}
	fm.Apply(got)
	if got.ComputeIdentity() != item.Identity {
		t.Error("identity changed across a write and read")
	}
	if got.Title != "Yes" {
		t.Errorf("title = %q, want %q", got.Title, "Yes")
	}
	if !got.Created.Equal(created) {
		t.Errorf("created = %v, want %v", got.Created, created)
	}
	if !reflect.DeepEqual(got.Relations, item.Relations) {
		t.Errorf("relations = %+v, want %+v", got.Relations, item.Relations)
	}
	if got.Extra["language"] != "en" {
		t.Errorf("extra = %+v", got.Extra)
	}
}

func TestBuildQuotesInvalidUTF8(t *testing.T) {
	item := &models.Item{Type: models.TypeDoc, Format: models.FormatMarkdown, Title: "caf\xc3", Body: "body"}
	item.Identity = item.ComputeIdentity()

	content, err := BuildContent(FromItem(item), item.Body)
	if err != nil {
		t.Fatalf("BuildContent() error = %v", err)
	}
	fm, body, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if body != "body" {
		t.Errorf("body = %q", body)
	}
	if !strings.HasPrefix(fm.Title, "caf") {
		t.Errorf("title = %q", fm.Title)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []string{"2024-01-02T03:04:05Z", "2024-01-02 03:04:05"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			got, err := ParseTimestamp(s)
			if err != nil {
				t.Fatalf("ParseTimestamp() error = %v", err)
			}
			if got.Year() != 2024 || got.Second() != 5 {
				t.Errorf("ParseTimestamp() = %v", got)
			}
		})
	}
}

func TestUpdateFields(t *testing.T) {
	content := "---\nidentity: sha256:abc\ntitle: Keep me\nstate: in_workspace\n---\n\nBody text\n"

	updated, err := UpdateFields([]byte(content), map[string]any{"state": "archived"})
	if err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}

	fm, body, err := Parse(string(updated))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if fm.State != "archived" {
		t.Errorf("state = %q, want archived", fm.State)
	}
	if fm.Title != "Keep me" {
		t.Errorf("title = %q, want %q", fm.Title, "Keep me")
	}
	if body != "Body text\n" {
		t.Errorf("body = %q", body)
	}
}

func TestUpdateFieldsWithoutHeader(t *testing.T) {
	updated, err := UpdateFields([]byte("plain body"), map[string]any{"state": "archived"})
	if err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}
	if !strings.HasPrefix(string(updated), "---\nstate: archived\n---\n") {
		t.Errorf("unexpected content: %q", updated)
	}
	_, body, _ := Parse(string(updated))
	if body != "plain body" {
		t.Errorf("body = %q", body)
	}
}
