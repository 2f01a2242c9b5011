// Package action defines action specifications, the action registry and
// the dispatcher that runs actions against items.
package action

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/grovetools/kw/pkg/models"
)

// Arity is the number of inputs an action accepts per invocation.
type Arity int

const (
	// Single actions take exactly one item. Given several, the dispatcher
	// invokes the body once per item.
	Single Arity = iota
	// List actions take one or more items in a single invocation.
	List
	// Either actions take any number of items, including none, in a
	// single invocation.
	Either
)

func (a Arity) String() string {
	switch a {
	case Single:
		return "single"
	case List:
		return "list"
	case Either:
		return "either"
	default:
		return fmt.Sprintf("arity(%d)", int(a))
	}
}

// Param declares a parameter an action understands.
type Param struct {
	Name        string
	Description string
	Default     string
	// Valid lists the allowed values. Empty means any value.
	Valid []string
}

// FullDescription appends the allowed values to the description.
func (p Param) FullDescription() string {
	if len(p.Valid) == 0 {
		return p.Description
	}
	return fmt.Sprintf("%s Allowed values: %s.", p.Description, strings.Join(p.Valid, ", "))
}

// Input is what an action body receives.
type Input struct {
	Items  []*models.Item
	Params map[string]string
}

// Item returns the first input item, or nil.
func (in Input) Item() *models.Item {
	if len(in.Items) == 0 {
		return nil
	}
	return in.Items[0]
}

// Param returns the value of a parameter, or "" when unset.
func (in Input) Param(name string) string {
	return in.Params[name]
}

// Body produces new content from inputs. It must not write to the store;
// compound actions write only through the dispatcher that runs them.
type Body func(ctx context.Context, in Input) ([]models.Payload, error)

// Spec describes a named action.
type Spec struct {
	Name          string
	Description   string
	Preconditions []string
	Arity         Arity
	Params        []Param
	// Version is part of every cache key. Changing it invalidates results
	// produced by earlier versions of the body.
	Version string
	Body    Body
}

// Validate checks that the spec can be registered.
func (s *Spec) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("name", s.Name, validateName),
		s.validateArity(),
		s.validateParams(),
		s.validateBody(),
	)
}

func (s *Spec) validateBody() error {
	if s.Body == nil {
		return criterio.NewFieldErrors("body", errors.New("body is required"))
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("name must not contain whitespace: %q", name)
	}
	return nil
}

func (s *Spec) validateArity() error {
	switch s.Arity {
	case Single, List, Either:
		return nil
	default:
		return criterio.NewFieldErrors("arity", fmt.Errorf("unknown arity %d", int(s.Arity)))
	}
}

func (s *Spec) validateParams() error {
	var errs criterio.FieldErrorsBuilder
	seen := map[string]bool{}
	for i, p := range s.Params {
		field := fmt.Sprintf("params[%d]", i)
		if p.Name == "" {
			errs = errs.Append(field, errors.New("name is required"))
			continue
		}
		if seen[p.Name] {
			errs = errs.Append(field, fmt.Errorf("duplicate param %q", p.Name))
		}
		seen[p.Name] = true
		if p.Default != "" && len(p.Valid) > 0 && !slices.Contains(p.Valid, p.Default) {
			errs = errs.Append(field+".default", fmt.Errorf("%q is not an allowed value", p.Default))
		}
	}
	return errs.ToError()
}

// Param looks up a declared parameter.
func (s *Spec) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// ResolveParams merges explicit values, workspace values and declared
// defaults into the canonical parameter map used for the body and the
// cache key. Only declared parameters appear in the result.
func (s *Spec) ResolveParams(explicit, workspace map[string]string) (map[string]string, error) {
	for _, name := range slices.Sorted(maps.Keys(explicit)) {
		if _, ok := s.Param(name); !ok {
			return nil, &models.InvalidInputError{
				Action: s.Name,
				Reason: fmt.Sprintf("unknown parameter %q", name),
			}
		}
	}

	resolved := make(map[string]string, len(s.Params))
	for _, p := range s.Params {
		value, ok := explicit[p.Name]
		if !ok {
			value, ok = workspace[p.Name]
		}
		if !ok || value == "" {
			value = p.Default
		}
		if value == "" {
			continue
		}
		if len(p.Valid) > 0 && !slices.Contains(p.Valid, value) {
			return nil, &models.InvalidInputError{
				Action: s.Name,
				Reason: fmt.Sprintf("parameter %s: %q is not one of %s", p.Name, value, strings.Join(p.Valid, ", ")),
			}
		}
		resolved[p.Name] = value
	}
	return resolved, nil
}

// CheckCount validates the number of inputs against the arity.
func (s *Spec) CheckCount(n int) error {
	switch s.Arity {
	case Single, List:
		if n == 0 {
			return &models.InvalidInputError{
				Action: s.Name,
				Reason: "expects at least one input and nothing is selected",
			}
		}
	case Either:
	}
	return nil
}
