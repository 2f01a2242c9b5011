package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/grovetools/kw/pkg/models"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n(.*)`)

// Frontmatter is the metadata header stored at the top of every text item,
// and in the sidecar of every binary item.
type Frontmatter struct {
	Identity    string            `yaml:"identity"`
	Title       string            `yaml:"title"`
	Type        string            `yaml:"type"`
	Format      string            `yaml:"format"`
	URL         string            `yaml:"url,omitempty"`
	Description string            `yaml:"description,omitempty"`
	State       string            `yaml:"state,omitempty"`
	Created     string            `yaml:"created"`
	Modified    string            `yaml:"modified"`
	Relations   *models.Relations `yaml:"relations,omitempty"`
	Extra       map[string]any    `yaml:"extra,omitempty"`
}

// Parse extracts frontmatter from content and returns the parsed data and body.
// A nil Frontmatter with no error means the content has no header.
func Parse(content string) (*Frontmatter, string, error) {
	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) != 3 {
		return nil, content, nil
	}

	fm, err := Decode([]byte(matches[1]))
	if err != nil {
		return nil, content, err
	}

	body := matches[2]
	if strings.HasPrefix(body, "\r\n") {
		body = body[2:]
	} else if strings.HasPrefix(body, "\n") {
		body = body[1:]
	}

	return fm, body, nil
}

// Decode parses a bare YAML header, as found in a sidecar file.
func Decode(data []byte) (*Frontmatter, error) {
	var fm Frontmatter
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	return &fm, nil
}

// Encode writes the header fields in a consistent order, without delimiters.
func Encode(fm *Frontmatter) (string, error) {
	var sb strings.Builder

	writeScalar(&sb, "identity", fm.Identity)
	writeScalar(&sb, "title", fm.Title)
	writeScalar(&sb, "type", fm.Type)
	writeScalar(&sb, "format", fm.Format)

	// Optional fields
	if fm.URL != "" {
		writeScalar(&sb, "url", fm.URL)
	}
	if fm.Description != "" {
		writeScalar(&sb, "description", fm.Description)
	}
	if fm.State != "" {
		writeScalar(&sb, "state", fm.State)
	}

	// Timestamps
	writeScalar(&sb, "created", fm.Created)
	writeScalar(&sb, "modified", fm.Modified)

	if fm.Relations != nil && !fm.Relations.IsEmpty() {
		if err := writeNested(&sb, "relations", fm.Relations); err != nil {
			return "", err
		}
	}
	if len(fm.Extra) > 0 {
		if err := writeNested(&sb, "extra", fm.Extra); err != nil {
			return "", err
		}
	}

	return sb.String(), nil
}

// Build creates the delimited YAML frontmatter string.
func Build(fm *Frontmatter) (string, error) {
	fields, err := Encode(fm)
	if err != nil {
		return "", err
	}
	return "---\n" + fields + "---", nil
}

// BuildContent combines frontmatter and body content into a complete document.
// Exactly one blank line separates the header from the body, and Parse strips it.
func BuildContent(fm *Frontmatter, bodyContent string) (string, error) {
	header, err := Build(fm)
	if err != nil {
		return "", err
	}
	return header + "\n\n" + bodyContent, nil
}

// FromItem converts an item into its header.
func FromItem(item *models.Item) *Frontmatter {
	fm := &Frontmatter{
		Identity:    item.Identity,
		Title:       item.Title,
		Type:        string(item.Type),
		Format:      string(item.Format),
		URL:         item.URL,
		Description: item.Description,
		State:       string(item.State),
		Created:     FormatTimestamp(item.Created),
		Modified:    FormatTimestamp(item.Modified),
		Extra:       item.Extra,
	}
	if !item.Relations.IsEmpty() {
		rel := item.Relations
		fm.Relations = &rel
	}
	return fm
}

// Apply copies header fields onto an item. Unknown types and formats are
// left for the caller to infer from the filename.
func (fm *Frontmatter) Apply(item *models.Item) {
	item.Identity = fm.Identity
	item.Title = fm.Title
	if t, ok := models.ParseItemType(fm.Type); ok {
		item.Type = t
	}
	if f, ok := models.ParseFormat(fm.Format); ok {
		item.Format = f
	}
	item.URL = fm.URL
	item.Description = fm.Description
	if fm.State != "" {
		item.State = models.State(fm.State)
	}
	if t, err := ParseTimestamp(fm.Created); err == nil {
		item.Created = t
	}
	if t, err := ParseTimestamp(fm.Modified); err == nil {
		item.Modified = t
	}
	if fm.Relations != nil {
		item.Relations = *fm.Relations
	}
	item.Extra = fm.Extra
}

// FormatTimestamp formats a time.Time into the standard frontmatter timestamp format
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a frontmatter timestamp string into time.Time.
// The older "2006-01-02 15:04:05" layout is still accepted.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

func writeScalar(sb *strings.Builder, key, value string) {
	sb.WriteString(key)
	sb.WriteString(": ")
	sb.WriteString(quoteScalar(value))
	sb.WriteString("\n")
}

func writeNested(sb *strings.Builder, key string, value any) error {
	out, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	sb.WriteString(key)
	sb.WriteString(":\n")
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return nil
}

// quoteScalar quotes a value when writing it bare would change its meaning.
func quoteScalar(s string) string {
	if s == "" {
		return `""`
	}
	if needsQuoting(s) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// needsQuoting checks if a string needs to be quoted in YAML
func needsQuoting(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	if strings.ContainsAny(s, ",:[]{}\"'#&*!|>%@`\n\t\\") {
		return true
	}
	if strings.TrimSpace(s) != s || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "?") {
		return true
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "on", "off", "null", "~":
		return true
	}
	var n float64
	if _, err := fmt.Sscan(s, &n); err == nil {
		return true
	}
	return false
}
