// Package precondition defines named predicates over items, used to decide
// which actions apply to which inputs.
package precondition

import (
	"fmt"
	"strings"

	"github.com/grovetools/kw/pkg/models"
)

// Func tests a single item.
type Func func(item *models.Item) bool

// Precondition is a named, composable predicate.
type Precondition struct {
	name string
	fn   Func
}

// New creates a precondition.
func New(name string, fn Func) Precondition {
	return Precondition{name: name, fn: fn}
}

// Name returns the precondition's name.
func (p Precondition) Name() string {
	return p.name
}

// Check evaluates the predicate. A nil item, a nil predicate, or a panic
// inside the predicate all count as unsatisfied.
func (p Precondition) Check(item *models.Item) (ok bool) {
	if item == nil || p.fn == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.fn(item)
}

// And holds when every precondition holds.
func And(ps ...Precondition) Precondition {
	return New(join(ps, " & "), func(item *models.Item) bool {
		for _, p := range ps {
			if !p.Check(item) {
				return false
			}
		}
		return true
	})
}

// Or holds when any precondition holds.
func Or(ps ...Precondition) Precondition {
	return New(join(ps, " | "), func(item *models.Item) bool {
		for _, p := range ps {
			if p.Check(item) {
				return true
			}
		}
		return false
	})
}

// Not negates a precondition.
func Not(p Precondition) Precondition {
	return New("~"+p.name, func(item *models.Item) bool {
		return !p.Check(item)
	})
}

func join(ps []Precondition, sep string) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.name
	}
	return "(" + strings.Join(names, sep) + ")"
}

// Engine is a registry of named preconditions.
type Engine struct {
	order  []string
	byName map[string]Precondition
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{byName: map[string]Precondition{}}
}

// Register adds a precondition. Names must be unique.
func (e *Engine) Register(ps ...Precondition) error {
	for _, p := range ps {
		if p.name == "" {
			return fmt.Errorf("precondition without a name")
		}
		if _, exists := e.byName[p.name]; exists {
			return fmt.Errorf("precondition already registered: %s", p.name)
		}
		e.byName[p.name] = p
		e.order = append(e.order, p.name)
	}
	return nil
}

// Lookup returns the precondition registered under name.
func (e *Engine) Lookup(name string) (Precondition, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// Names lists registered names in registration order.
func (e *Engine) Names() []string {
	return append([]string(nil), e.order...)
}

// Check reports whether item satisfies every named precondition. Unknown
// names are unsatisfied. On failure the first unmet name is returned.
func (e *Engine) Check(names []string, item *models.Item) (bool, string) {
	for _, name := range names {
		p, ok := e.byName[name]
		if !ok || !p.Check(item) {
			return false, name
		}
	}
	return true, ""
}

// Unknown returns the names that are not registered.
func (e *Engine) Unknown(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := e.byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
