package service

import (
	"errors"

	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/selection"
)

// Select makes refs the current selection. References are resolved to
// workspace paths first, so identities and absolute paths are accepted.
func (s *Service) Select(refs ...string) (selection.Selection, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		rel, err := s.Store.Resolve(ref)
		if err != nil {
			return nil, err
		}
		paths = append(paths, rel)
	}
	sel := selection.New(paths...)
	if sel.IsEmpty() {
		return nil, &models.InvalidInputError{Reason: "nothing to select"}
	}
	s.History.Push(sel)
	return s.History.Current(), s.History.Save()
}

// Current returns the current selection, or the most recently modified
// item when nothing is selected.
func (s *Service) Current() (selection.Selection, error) {
	if sel := s.History.Current(); !sel.IsEmpty() {
		return sel, nil
	}
	item, err := s.Store.MostRecent()
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return selection.Selection{}, nil
		}
		return nil, err
	}
	return selection.New(item.Path), nil
}

// Previous steps back in the selection history.
func (s *Service) Previous() (selection.Selection, error) {
	sel, err := s.History.Previous()
	if err != nil {
		return nil, err
	}
	return sel, s.History.Save()
}

// Next steps forward in the selection history.
func (s *Service) Next() (selection.Selection, error) {
	sel, err := s.History.Next()
	if err != nil {
		return nil, err
	}
	return sel, s.History.Save()
}

// Unselect removes paths from the current selection.
func (s *Service) Unselect(refs ...string) (selection.Selection, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		if rel, err := s.Store.Resolve(ref); err == nil {
			ref = rel
		}
		paths = append(paths, ref)
	}
	sel, err := s.History.Unselect(paths...)
	if err != nil {
		return nil, err
	}
	return sel, s.History.Save()
}

// ClearSelection forgets the whole selection history.
func (s *Service) ClearSelection() error {
	s.History.Clear()
	return s.History.Save()
}
