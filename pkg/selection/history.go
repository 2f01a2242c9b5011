package selection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/kw/pkg/logging"
)

// DefaultMax is the number of selections retained by default.
const DefaultMax = 50

// ErrNoHistory is returned when moving past either end of the history.
var ErrNoHistory = errors.New("no more selections in history")

// State describes whether anything has been selected yet.
type State string

const (
	StateEmpty  State = "empty"
	StateActive State = "active"
)

// History is a linear stack of selections with a cursor. Pushing after
// moving back discards the selections ahead of the cursor.
type History struct {
	entries []Selection
	index   int
	max     int
	path    string
	log     *logrus.Entry
}

type persisted struct {
	CurrentIndex int        `yaml:"current_index"`
	History      [][]string `yaml:"history"`
}

// Option configures a History.
type Option func(*History)

// WithMax sets how many selections are retained. Values below one keep
// the default.
func WithMax(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.max = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(h *History) {
		h.log = log
	}
}

// NewHistory creates an empty, unpersisted history.
func NewHistory(opts ...Option) *History {
	h := &History{max: DefaultMax}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logging.Component(h.log, "selection")
	return h
}

// Load reads the history stored at path. A missing file yields an empty
// history. An unreadable file is moved aside and an empty history is
// returned, so a corrupt state file never blocks a session.
func Load(path string, opts ...Option) *History {
	h := NewHistory(opts...)
	h.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return h
	}
	if err == nil {
		var p persisted
		if err = yaml.Unmarshal(data, &p); err == nil {
			h.restore(p)
			return h
		}
	}

	h.log.WithError(err).WithField("path", path).Warn("discarding unreadable selection history")
	if renameErr := os.Rename(path, path+".bad"); renameErr != nil {
		h.log.WithError(renameErr).Debug("could not move selection history aside")
	}
	return h
}

func (h *History) restore(p persisted) {
	for _, paths := range p.History {
		h.entries = append(h.entries, New(paths...))
	}
	h.index = p.CurrentIndex
	if h.index < 0 || h.index >= len(h.entries) {
		fixed := max(0, len(h.entries)-1)
		h.log.WithFields(logrus.Fields{"index": h.index, "fixed": fixed}).Warn("fixing invalid selection index")
		h.index = fixed
	}
	h.truncate()
}

// Save writes the history to the path it was loaded from. Histories
// created with NewHistory are not persisted.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}
	p := persisted{CurrentIndex: h.index, History: make([][]string, len(h.entries))}
	for i, sel := range h.entries {
		p.History[i] = []string(sel)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode selection history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write selection history: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write selection history: %w", err)
	}
	return nil
}

// State reports whether a non-empty selection is current.
func (h *History) State() State {
	if h.Current().IsEmpty() {
		return StateEmpty
	}
	return StateActive
}

// Current returns a copy of the current selection, empty if there is none.
func (h *History) Current() Selection {
	if len(h.entries) == 0 {
		return Selection{}
	}
	return h.entries[h.index].Clone()
}

// CurrentIndex returns the cursor position.
func (h *History) CurrentIndex() int {
	return h.index
}

// Len returns the number of retained selections.
func (h *History) Len() int {
	return len(h.entries)
}

// List returns copies of all retained selections, oldest first.
func (h *History) List() []Selection {
	out := make([]Selection, len(h.entries))
	for i, sel := range h.entries {
		out[i] = sel.Clone()
	}
	return out
}

// Push makes sel the current selection, keeping the previous one in the
// history. Empty selections and repeats of the latest selection are
// ignored. It reports whether the history changed.
func (h *History) Push(sel Selection) bool {
	h.clearFuture()

	sel = New(sel...)
	switch {
	case sel.IsEmpty():
		h.log.Debug("ignoring push of empty selection")
		return false
	case len(h.entries) > 0 && h.entries[len(h.entries)-1].Equal(sel):
		h.log.WithField("selection", sel).Debug("ignoring push of duplicate selection")
		h.index = len(h.entries) - 1
		return false
	case len(h.entries) > 0 && h.entries[len(h.entries)-1].IsEmpty():
		h.entries[len(h.entries)-1] = sel
	default:
		h.entries = append(h.entries, sel)
	}
	h.index = len(h.entries) - 1
	h.truncate()
	return true
}

// Set replaces the current selection without adding a history entry. On an
// empty history it pushes instead.
func (h *History) Set(sel Selection) {
	if len(h.entries) == 0 {
		h.Push(sel)
		return
	}
	h.entries[h.index] = New(sel...)
}

// Previous moves the cursor back and returns that selection.
func (h *History) Previous() (Selection, error) {
	if h.index-1 < 0 || len(h.entries) == 0 {
		return nil, fmt.Errorf("previous selection: %w", ErrNoHistory)
	}
	h.index--
	return h.Current(), nil
}

// Next moves the cursor forward and returns that selection.
func (h *History) Next() (Selection, error) {
	if h.index+1 >= len(h.entries) {
		return nil, fmt.Errorf("next selection: %w", ErrNoHistory)
	}
	h.index++
	return h.Current(), nil
}

// PreviousN returns the n selections ending at the cursor, oldest first.
func (h *History) PreviousN(n int) ([]Selection, error) {
	if n <= 0 || h.index+1 < n || len(h.entries) < n {
		return nil, fmt.Errorf("need %d selections before current position: %w", n, ErrNoHistory)
	}
	out := make([]Selection, 0, n)
	for _, sel := range h.entries[h.index-n+1 : h.index+1] {
		out = append(out, sel.Clone())
	}
	return out, nil
}

// Unselect removes paths from the current selection and returns what is
// left.
func (h *History) Unselect(paths ...string) (Selection, error) {
	if len(h.entries) == 0 {
		return nil, fmt.Errorf("unselect: %w", ErrNoHistory)
	}
	h.entries[h.index] = h.entries[h.index].Without(paths...)
	return h.Current(), nil
}

// Remove drops paths from every retained selection. Selections left empty
// are removed and the cursor stays on the same logical entry.
func (h *History) Remove(paths ...string) {
	kept := h.entries[:0]
	index := h.index
	for i, sel := range h.entries {
		sel = sel.Without(paths...)
		if sel.IsEmpty() {
			if i <= h.index {
				index = max(0, index-1)
			}
			continue
		}
		kept = append(kept, sel)
	}
	h.entries = kept
	h.index = min(index, max(0, len(h.entries)-1))
}

// Replace rewrites from to to in every retained selection, as after a move.
func (h *History) Replace(from, to string) {
	for i, sel := range h.entries {
		h.entries[i] = sel.Replace(from, to)
	}
}

// Filter removes paths for which exists returns false.
func (h *History) Filter(exists func(path string) bool) []string {
	var missing []string
	seen := map[string]bool{}
	for _, sel := range h.entries {
		for _, p := range sel {
			if !seen[p] && !exists(p) {
				missing = append(missing, p)
			}
			seen[p] = true
		}
	}
	if len(missing) > 0 {
		h.log.WithField("paths", missing).Warn("unselecting missing items")
		h.Remove(missing...)
	}
	return missing
}

// Clear drops all history.
func (h *History) Clear() {
	h.entries = nil
	h.index = 0
}

func (h *History) clearFuture() {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.index+1]
	}
}

func (h *History) truncate() {
	if h.max > 0 && len(h.entries) > h.max {
		drop := len(h.entries) - h.max
		h.entries = h.entries[drop:]
		h.index = max(0, h.index-drop)
	}
}
