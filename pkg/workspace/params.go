package workspace

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Params are parameter values set for every action run in a workspace.
type Params map[string]string

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// LoadParams reads the workspace parameter file. A missing file yields
// empty params.
func (w *Workspace) LoadParams() (Params, error) {
	data, err := os.ReadFile(w.ParamsPath())
	if errors.Is(err, os.ErrNotExist) {
		return Params{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	params := Params{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parse params %s: %w", w.ParamsPath(), err)
	}
	return params, nil
}

// SaveParams replaces the workspace parameter file.
func (w *Workspace) SaveParams(params Params) error {
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	path := w.ParamsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write params: %w", err)
	}
	return nil
}

// SetParam sets one parameter. An empty value removes it.
func (w *Workspace) SetParam(name, value string) (Params, error) {
	params, err := w.LoadParams()
	if err != nil {
		return nil, err
	}
	if value == "" {
		delete(params, name)
	} else {
		params[name] = value
	}
	return params, w.SaveParams(params)
}
