// Package selection tracks the current working set of items and the
// history of previous selections.
package selection

import (
	"fmt"
	"slices"
	"strings"
)

// Selection is an ordered, duplicate-free list of workspace-relative paths.
type Selection []string

// New builds a selection, dropping empty and repeated paths.
func New(paths ...string) Selection {
	sel := make(Selection, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		sel = append(sel, p)
	}
	return sel
}

// IsEmpty reports whether the selection holds no paths.
func (s Selection) IsEmpty() bool {
	return len(s) == 0
}

// Contains reports whether path is selected.
func (s Selection) Contains(path string) bool {
	return slices.Contains(s, path)
}

// Equal reports whether both selections hold the same paths in the same order.
func (s Selection) Equal(other Selection) bool {
	return slices.Equal(s, other)
}

// Without returns the selection minus targets.
func (s Selection) Without(targets ...string) Selection {
	out := make(Selection, 0, len(s))
	for _, p := range s {
		if !slices.Contains(targets, p) {
			out = append(out, p)
		}
	}
	return out
}

// Replace returns the selection with every occurrence of from swapped for
// to.
func (s Selection) Replace(from, to string) Selection {
	out := make([]string, len(s))
	for i, p := range s {
		if p == from {
			p = to
		}
		out[i] = p
	}
	return New(out...)
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

func (s Selection) String() string {
	switch len(s) {
	case 0:
		return "Selection()"
	case 1:
		return fmt.Sprintf("Selection(%s)", s[0])
	default:
		return fmt.Sprintf("Selection(%s)", strings.Join(s, ", "))
	}
}
