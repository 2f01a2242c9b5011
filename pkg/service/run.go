package service

import (
	"context"
	"fmt"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/provenance"
	"github.com/grovetools/kw/pkg/workspace"
)

// Run dispatches an action. Workspace parameters fill in declared
// parameters that are not given explicitly.
func (s *Service) Run(ctx context.Context, name string, refs []string, params map[string]string, opts ...action.RunOption) (*action.Report, error) {
	wsParams, err := s.Workspace.LoadParams()
	if err != nil {
		return nil, err
	}
	opts = append([]action.RunOption{action.WithWorkspaceParams(wsParams)}, opts...)

	report, runErr := s.Dispatcher.Run(ctx, name, refs, params, opts...)
	if err := s.History.Save(); err != nil && runErr == nil {
		return report, err
	}
	return report, runErr
}

// Suggest returns the actions whose preconditions hold for every item
// in refs, or in the current selection when refs is empty.
func (s *Service) Suggest(refs ...string) ([]*action.Spec, error) {
	if len(refs) == 0 {
		sel, err := s.Current()
		if err != nil {
			return nil, err
		}
		refs = sel
	}
	if len(refs) == 0 {
		return nil, &models.InvalidInputError{Reason: "nothing is selected"}
	}

	items := make([]*models.Item, 0, len(refs))
	for _, ref := range refs {
		item, err := s.Store.Load(ref)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var specs []*action.Spec
	for spec := range s.Actions.Suggest(items[0]) {
		if !allSatisfy(s.Actions, spec, items[1:]) {
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func allSatisfy(reg *action.Registry, spec *action.Spec, items []*models.Item) bool {
	for _, item := range items {
		if ok, _ := reg.Check(spec, item); !ok {
			return false
		}
	}
	return true
}

// Lineage returns the derivation chain of an item.
func (s *Service) Lineage(ref string) (*provenance.Chain, error) {
	item, err := s.Store.Load(ref)
	if err != nil {
		return nil, err
	}
	return s.Tracker.DerivationChain(item)
}

// Derived returns the items produced directly from an item.
func (s *Service) Derived(ref string) ([]*models.Item, error) {
	item, err := s.Store.Load(ref)
	if err != nil {
		return nil, err
	}
	return s.Tracker.Derived(item)
}

// Params returns the workspace parameter settings.
func (s *Service) Params() (workspace.Params, error) {
	return s.Workspace.LoadParams()
}

// SetParam stores a workspace parameter. Only parameters declared by some
// registered action can be set, and declared allowed values are enforced.
// An empty value removes the setting.
func (s *Service) SetParam(name, value string) (workspace.Params, error) {
	declared := false
	for _, spec := range s.Actions.All() {
		p, ok := spec.Param(name)
		if !ok {
			continue
		}
		declared = true
		if value != "" && len(p.Valid) > 0 {
			if _, err := spec.ResolveParams(map[string]string{name: value}, nil); err != nil {
				return nil, err
			}
		}
	}
	if !declared {
		return nil, &models.InvalidInputError{Reason: fmt.Sprintf("no action declares a parameter named %q", name)}
	}
	return s.Workspace.SetParam(name, value)
}
