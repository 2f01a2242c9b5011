package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grovetools/kw/pkg/frontmatter"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/slug"
)

// IsURL reports whether a locator names a web resource.
func IsURL(locator string) bool {
	u, err := url.Parse(locator)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CanonicalizeURL normalizes a URL so the same resource always gets the
// same identity: lowercase scheme and host, no default port, no fragment,
// no tracking parameters, sorted query, no trailing slash.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var parts []string
	for _, key := range keys {
		for _, v := range q[key] {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}

// Import brings a URL or a local file into the workspace. Importing content
// that is already stored returns the existing item instead of a copy.
func (s *Store) Import(ctx context.Context, locator string) (*models.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsURL(locator) {
		return s.importURL(locator)
	}
	return s.importFile(locator)
}

func (s *Store) importURL(locator string) (*models.Item, error) {
	canon, err := CanonicalizeURL(locator)
	if err != nil {
		return nil, &models.InvalidInputError{Reason: err.Error()}
	}
	u, _ := url.Parse(canon)

	item := &models.Item{
		Type:   models.TypeResource,
		Format: models.FormatURL,
		URL:    canon,
		Title:  strings.TrimSuffix(u.Host+u.Path, "/"),
	}
	return s.saveUnlessPresent(item)
}

func (s *Store) importFile(locator string) (*models.Item, error) {
	abs, err := filepath.Abs(locator)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", locator, err)
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, &models.NotFoundError{Kind: "file", Ref: locator}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", locator, err)
	}

	// Files already inside the workspace are adopted in place.
	if rel, err := filepath.Rel(s.root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		rel = filepath.ToSlash(rel)
		item, err := s.LoadPath(rel)
		if err != nil {
			return nil, err
		}
		if item.Identity != "" && !item.IsStale() && s.hasHeader(rel, item) {
			return item, nil
		}
		return s.Save(item)
	}

	stem, itemType, ext := parseFilename(abs)
	format, ok := models.FormatForExt(ext)
	if !ok {
		format = models.FormatBinary
	}

	item := &models.Item{Format: format, Type: itemType}
	if format.IsText() {
		fm, body, err := frontmatter.Parse(string(data))
		if err != nil {
			return nil, &models.MalformedMetadataError{Path: locator, Err: err}
		}
		item.Body = body
		if fm != nil {
			fm.Apply(item)
			item.Path = ""
			item.State = ""
		}
	} else {
		item.Body = string(data)
	}
	if item.Type == "" {
		item.Type = defaultTypeFor(item.Format)
	}
	if item.Title == "" {
		item.Title = slug.Title(stem)
	}
	return s.saveUnlessPresent(item)
}

func (s *Store) hasHeader(rel string, item *models.Item) bool {
	if item.IsBinary() {
		return s.Exists(rel + SidecarSuffix)
	}
	data, err := os.ReadFile(s.Abs(rel))
	if err != nil {
		return false
	}
	fm, _, err := frontmatter.Parse(string(data))
	return err == nil && fm != nil && fm.Identity != ""
}

func (s *Store) saveUnlessPresent(item *models.Item) (*models.Item, error) {
	identity := item.ComputeIdentity()
	if rel, ok := s.FindByIdentity(identity); ok && !IsArchived(rel) {
		existing, err := s.LoadPath(rel)
		if err == nil && existing.Identity == identity {
			s.log.WithField("path", rel).Info("already imported")
			return existing, nil
		}
	}
	return s.Save(item)
}
