package service

import (
	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/store"
	"github.com/grovetools/kw/pkg/workspace"
)

// WorkspaceItems is the listing of one workspace.
type WorkspaceItems struct {
	Workspace *workspace.Workspace
	Items     []*models.Item
}

// Workspaces lists every workspace opened so far, most recently used first.
func (s *Service) Workspaces() ([]*workspace.Workspace, error) {
	if s.workspaces == nil {
		return []*workspace.Workspace{s.Workspace}, nil
	}
	return s.workspaces.List()
}

// ListAllWorkspaces lists items from every registered workspace. Workspaces
// that cannot be read are logged and skipped.
func (s *Service) ListAllWorkspaces(opts store.ListOptions) ([]WorkspaceItems, error) {
	all, err := s.Workspaces()
	if err != nil {
		return nil, err
	}

	var out []WorkspaceItems
	for _, ws := range all {
		if ws.Path == s.Workspace.Path {
			items, err := s.Store.List(opts)
			if err != nil {
				return nil, err
			}
			out = append(out, WorkspaceItems{Workspace: ws, Items: items})
			continue
		}
		if !ws.IsInitialized() {
			s.log.WithField("path", ws.Path).Warn("registered workspace is gone")
			continue
		}
		items, err := listWorkspace(ws, opts)
		if err != nil {
			s.log.WithError(err).WithField("workspace", ws.Name).Warn("could not list workspace")
			continue
		}
		out = append(out, WorkspaceItems{Workspace: ws, Items: items})
	}
	return out, nil
}

func listWorkspace(ws *workspace.Workspace, opts store.ListOptions) ([]*models.Item, error) {
	idx, err := index.Open(ws.IndexPath())
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	j, err := journal.Open(ws.JournalPath())
	if err != nil {
		return nil, err
	}
	st, err := store.New(ws.Path, idx, j)
	if err != nil {
		return nil, err
	}
	return st.List(opts)
}
