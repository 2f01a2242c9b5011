package action

import (
	"fmt"
	"iter"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/precondition"
)

// Registry holds action specs in registration order.
type Registry struct {
	engine *precondition.Engine
	specs  map[string]*Spec
	order  []string
}

// NewRegistry creates an empty registry checking preconditions against
// engine.
func NewRegistry(engine *precondition.Engine) *Registry {
	return &Registry{
		engine: engine,
		specs:  make(map[string]*Spec),
	}
}

// Engine returns the precondition engine.
func (r *Registry) Engine() *precondition.Engine {
	return r.engine
}

// Register adds specs. Names must be unique and every precondition name
// must be known to the engine.
func (r *Registry) Register(specs ...*Spec) error {
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid action %q: %w", s.Name, err)
		}
		if _, ok := r.specs[s.Name]; ok {
			return &models.DuplicateActionError{Name: s.Name}
		}
		if unknown := r.engine.Unknown(s.Preconditions); len(unknown) > 0 {
			return fmt.Errorf("action %s: unknown preconditions: %s", s.Name, strings.Join(unknown, ", "))
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return nil
}

// Get returns the spec registered under name. Unknown names produce a
// NotFoundError with close matches as suggestions.
func (r *Registry) Get(name string) (*Spec, error) {
	if s, ok := r.specs[name]; ok {
		return s, nil
	}
	return nil, &models.NotFoundError{Kind: "action", Ref: name, Suggestions: r.similar(name)}
}

func (r *Registry) similar(name string) []string {
	matches := fuzzy.Find(name, r.order)
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// Names returns action names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every spec in registration order.
func (r *Registry) All() []*Spec {
	specs := make([]*Spec, len(r.order))
	for i, name := range r.order {
		specs[i] = r.specs[name]
	}
	return specs
}

// Check reports whether every precondition of s holds for item, and the
// first one that does not.
func (r *Registry) Check(s *Spec, item *models.Item) (bool, string) {
	return r.engine.Check(s.Preconditions, item)
}

// Suggest yields every action applicable to item, in registration order.
// Each iteration re-evaluates the preconditions.
func (r *Registry) Suggest(item *models.Item) iter.Seq[*Spec] {
	return func(yield func(*Spec) bool) {
		for _, name := range r.order {
			s := r.specs[name]
			if ok, _ := r.Check(s, item); !ok {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}
