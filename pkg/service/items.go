package service

import (
	"context"
	"fmt"

	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/store"
)

// Import brings URLs or files into the workspace and selects the results.
// Already stored content resolves to the existing item.
func (s *Service) Import(ctx context.Context, locators ...string) ([]*models.Item, error) {
	items := make([]*models.Item, 0, len(locators))
	for _, locator := range locators {
		item, err := s.Store.Import(ctx, locator)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", locator, err)
		}
		items = append(items, item)
	}
	if len(items) > 0 {
		paths := make([]string, len(items))
		for i, item := range items {
			paths[i] = item.Path
		}
		s.History.Push(selection.New(paths...))
		if err := s.History.Save(); err != nil {
			return items, err
		}
	}
	return items, nil
}

// List returns workspace items.
func (s *Service) List(opts store.ListOptions) ([]*models.Item, error) {
	return s.Store.List(opts)
}

// Show loads one item by path or identity.
func (s *Service) Show(ref string) (*models.Item, error) {
	return s.Store.Load(ref)
}

// Search runs a full-text query over titles and text bodies.
func (s *Service) Search(query string, opts *index.SearchOptions) ([]*index.Record, error) {
	records, err := s.Index.Search(query, opts)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return records, nil
}

// Archive moves items into the archive. Selections referring to them
// follow them to their new paths.
func (s *Service) Archive(refs ...string) ([]string, error) {
	return s.relocate(refs, s.Store.Archive)
}

// Unarchive restores archived items.
func (s *Service) Unarchive(refs ...string) ([]string, error) {
	return s.relocate(refs, s.Store.Unarchive)
}

func (s *Service) relocate(refs []string, move func(string) (string, error)) ([]string, error) {
	if len(refs) == 0 {
		refs = s.History.Current()
	}
	if len(refs) == 0 {
		return nil, &models.InvalidInputError{Reason: "no items given and nothing is selected"}
	}

	moved := make([]string, 0, len(refs))
	for _, ref := range refs {
		from, err := s.Store.Resolve(ref)
		if err != nil {
			return moved, err
		}
		to, err := move(from)
		if err != nil {
			return moved, err
		}
		s.History.Replace(from, to)
		moved = append(moved, to)
	}
	return moved, s.History.Save()
}

// Reindex rebuilds the item index from disk and drops selections that
// point at files which no longer exist.
func (s *Service) Reindex(ctx context.Context) (*store.ReindexReport, error) {
	report, err := s.Store.Reindex(ctx)
	if err != nil {
		return report, err
	}
	if missing := s.History.Filter(s.Store.Exists); len(missing) > 0 {
		s.log.WithField("paths", missing).Info("dropped missing paths from selection history")
		if err := s.History.Save(); err != nil {
			return report, err
		}
	}
	return report, nil
}
