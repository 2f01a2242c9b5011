package models

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// IdentityPrefix marks a content identity (as opposed to a source path).
const IdentityPrefix = "sha256:"

// State is the lifecycle state of an item.
type State string

const (
	StateTransient   State = "transient"
	StateInWorkspace State = "in_workspace"
	StateArchived    State = "archived"
)

// DerivedBy records the action invocation that produced an item.
type DerivedBy struct {
	Action string            `yaml:"action" json:"action"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Relations links an item to the items it was derived from.
type Relations struct {
	DerivedFrom []string   `yaml:"derived_from,omitempty" json:"derived_from,omitempty"`
	DerivedBy   *DerivedBy `yaml:"derived_by,omitempty" json:"derived_by,omitempty"`
}

// IsEmpty reports whether the item has no recorded lineage.
func (r Relations) IsEmpty() bool {
	return len(r.DerivedFrom) == 0 && r.DerivedBy == nil
}

// Item is a single unit of content in a workspace.
type Item struct {
	Identity    string         `json:"identity"`
	Type        ItemType       `json:"type"`
	Format      Format         `json:"format"`
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Body        string         `json:"body,omitempty"`
	State       State          `json:"state"`
	Path        string         `json:"path,omitempty"`
	Relations   Relations      `json:"relations"`
	Created     time.Time      `json:"created"`
	Modified    time.Time      `json:"modified"`
	Extra       map[string]any `json:"extra,omitempty"`

	// RecordedIdentity is the identity found in the stored header when it
	// no longer matches the content, which means the file was edited by hand.
	RecordedIdentity string `json:"-"`
}

// ComputeIdentity hashes type, format, URL and body. Title, path, state
// and timestamps do not participate.
func (i *Item) ComputeIdentity() string {
	h := sha256.New()
	for _, part := range []string{string(i.Type), string(i.Format), i.URL} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write([]byte(i.Body))
	return IdentityPrefix + hex.EncodeToString(h.Sum(nil))
}

// IsStale reports whether the stored identity no longer matches the content.
func (i *Item) IsStale() bool {
	return i.RecordedIdentity != "" && i.RecordedIdentity != i.Identity
}

// IsBinary reports whether the item is stored as raw bytes with a sidecar.
func (i *Item) IsBinary() bool {
	return !i.Format.IsText()
}

// IsArchived reports whether the item has been archived.
func (i *Item) IsArchived() bool {
	return i.State == StateArchived
}

// DisplayTitle returns the title, falling back to the URL or the first
// line of the body.
func (i *Item) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	if i.URL != "" {
		return i.URL
	}
	if !i.IsBinary() {
		line, _, _ := strings.Cut(strings.TrimSpace(i.Body), "\n")
		line = strings.TrimLeft(line, "# ")
		if utf8.RuneCountInString(line) > 64 {
			line = string([]rune(line)[:64])
		}
		if line != "" {
			return line
		}
	}
	return "untitled"
}

// ShortIdentity abbreviates the identity for display.
func (i *Item) ShortIdentity() string {
	id := strings.TrimPrefix(i.Identity, IdentityPrefix)
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	c.Relations.DerivedFrom = slices.Clone(i.Relations.DerivedFrom)
	if i.Relations.DerivedBy != nil {
		db := *i.Relations.DerivedBy
		db.Params = maps.Clone(i.Relations.DerivedBy.Params)
		c.Relations.DerivedBy = &db
	}
	c.Extra = maps.Clone(i.Extra)
	return &c
}

// IsIdentity reports whether ref looks like an item identity.
func IsIdentity(ref string) bool {
	return strings.HasPrefix(ref, IdentityPrefix)
}

// Payload is content produced by an action body before it is persisted.
type Payload struct {
	Type        ItemType
	Format      Format
	Title       string
	URL         string
	Description string
	Body        string
	Extra       map[string]any
}

// Item converts the payload into an unsaved item.
func (p Payload) Item() *Item {
	item := &Item{
		Type:        p.Type,
		Format:      p.Format,
		Title:       p.Title,
		URL:         p.URL,
		Description: p.Description,
		Body:        p.Body,
		State:       StateTransient,
		Extra:       maps.Clone(p.Extra),
	}
	if item.Type == "" {
		item.Type = TypeDoc
	}
	if item.Format == "" {
		item.Format = FormatMarkdown
	}
	item.Identity = item.ComputeIdentity()
	return item
}

// Payload returns the content of the item, without its location or
// relations.
func (i *Item) Payload() Payload {
	return Payload{
		Type:        i.Type,
		Format:      i.Format,
		Title:       i.Title,
		URL:         i.URL,
		Description: i.Description,
		Body:        i.Body,
		Extra:       maps.Clone(i.Extra),
	}
}
