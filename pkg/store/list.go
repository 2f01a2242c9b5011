package store

import (
	"cmp"
	"errors"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grovetools/kw/pkg/models"
)

// SortField selects the ordering of List results.
type SortField string

const (
	SortByPath     SortField = "path"
	SortByTitle    SortField = "title"
	SortByCreated  SortField = "created"
	SortByModified SortField = "modified"
)

// ListOptions filters and orders store listings.
type ListOptions struct {
	Types           []models.ItemType
	Formats         []models.Format
	Pattern         string // doublestar glob over workspace-relative paths
	IncludeArchived bool
	SortBy          SortField
	Reverse         bool
	Limit           int
}

func (o ListOptions) matches(item *models.Item) bool {
	if len(o.Types) > 0 && !slices.Contains(o.Types, item.Type) {
		return false
	}
	if len(o.Formats) > 0 && !slices.Contains(o.Formats, item.Format) {
		return false
	}
	return true
}

func (o ListOptions) matchesPath(rel string) bool {
	if o.Pattern == "" {
		return true
	}
	ok, err := doublestar.Match(o.Pattern, rel)
	if err != nil {
		return false
	}
	if !ok && IsArchived(rel) {
		ok, _ = doublestar.Match(o.Pattern, strings.TrimPrefix(rel, ArchiveDir+"/"))
	}
	return ok
}

// Walk lazily yields every item in the workspace in path order. Each
// iteration rescans the disk, so the sequence can be ranged over again to
// observe new items. Items that fail to load are yielded as errors.
func (s *Store) Walk(opts ListOptions) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		roots := []string{s.root}
		if opts.IncludeArchived {
			roots = append(roots, s.Abs(ArchiveDir))
		}

		stop := errors.New("stop")
		for _, root := range roots {
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					if p == root && errors.Is(err, fs.ErrNotExist) {
						return filepath.SkipDir
					}
					if !yield(nil, err) {
						return stop
					}
					return nil
				}
				name := d.Name()
				if d.IsDir() {
					if p != root && strings.HasPrefix(name, ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if strings.HasPrefix(name, ".") || strings.HasSuffix(name, SidecarSuffix) {
					return nil
				}
				if _, ok := models.FormatForExt(path.Ext(name)); !ok {
					return nil
				}

				rel, err := filepath.Rel(s.root, p)
				if err != nil {
					return nil
				}
				rel = filepath.ToSlash(rel)
				if !opts.matchesPath(rel) {
					return nil
				}

				item, err := s.LoadPath(rel)
				if err != nil {
					if !yield(nil, err) {
						return stop
					}
					return nil
				}
				if !opts.matches(item) {
					return nil
				}
				if !yield(item, nil) {
					return stop
				}
				return nil
			})
			if errors.Is(err, stop) {
				return
			}
			if err != nil {
				if !yield(nil, err) {
					return
				}
			}
		}
	}
}

// List collects, sorts and truncates Walk results. Items with unreadable
// metadata are logged and skipped.
func (s *Store) List(opts ListOptions) ([]*models.Item, error) {
	var items []*models.Item
	for item, err := range s.Walk(opts) {
		if err != nil {
			var malformed *models.MalformedMetadataError
			if errors.As(err, &malformed) {
				s.log.WithError(err).Warn("skipping item")
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}

	SortItems(items, opts.SortBy, opts.Reverse)
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// SortItems orders items in place, breaking ties by path.
func SortItems(items []*models.Item, by SortField, reverse bool) {
	slices.SortStableFunc(items, func(a, b *models.Item) int {
		var c int
		switch by {
		case SortByTitle:
			c = cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortByCreated:
			c = a.Created.Compare(b.Created)
		case SortByModified:
			c = a.Modified.Compare(b.Modified)
		}
		if c == 0 {
			c = cmp.Compare(a.Path, b.Path)
		}
		if reverse {
			return -c
		}
		return c
	})
}

// MostRecent returns the most recently modified workspace item.
func (s *Store) MostRecent() (*models.Item, error) {
	items, err := s.List(ListOptions{SortBy: SortByModified, Reverse: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &models.NotFoundError{Kind: "item", Ref: "most recent"}
	}
	return items[0], nil
}

// GroupBy selects how Group buckets items.
type GroupBy string

const (
	GroupByType   GroupBy = "type"
	GroupByFormat GroupBy = "format"
	GroupByFolder GroupBy = "folder"
	GroupByState  GroupBy = "state"
)

// Group is one bucket of grouped items.
type Group struct {
	Key   string
	Items []*models.Item
}

// GroupItems buckets items, keeping buckets in order of first appearance
// and items in their incoming order.
func GroupItems(items []*models.Item, by GroupBy) []Group {
	var groups []Group
	positions := map[string]int{}
	for _, item := range items {
		var key string
		switch by {
		case GroupByFormat:
			key = string(item.Format)
		case GroupByFolder:
			key = path.Dir(item.Path)
		case GroupByState:
			key = string(item.State)
		default:
			key = string(item.Type)
		}
		pos, ok := positions[key]
		if !ok {
			pos = len(groups)
			positions[key] = pos
			groups = append(groups, Group{Key: key})
		}
		groups[pos].Items = append(groups[pos].Items, item)
	}
	return groups
}
