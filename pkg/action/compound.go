package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/models"
)

type dispatcherKey struct{}

func withDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

func dispatcherFrom(ctx context.Context) (*Dispatcher, error) {
	d, ok := ctx.Value(dispatcherKey{}).(*Dispatcher)
	if !ok {
		return nil, errors.New("compound action must be run by a dispatcher")
	}
	return d, nil
}

// NewSequence builds an action that runs steps in order, feeding the
// outputs of each step to the next. Intermediate results are saved as
// transient items and archived once the last step succeeds. The final
// outputs are recorded as derived from the sequence's own inputs.
//
// The sequence takes the preconditions and arity of its first step and
// accepts the parameters of every step.
func NewSequence(reg *Registry, name, description string, steps ...string) (*Spec, error) {
	specs, err := lookupParts(reg, name, steps)
	if err != nil {
		return nil, err
	}
	first := specs[0]
	return &Spec{
		Name:          name,
		Description:   compoundDescription(description, "This action is a sequence of these actions", steps),
		Preconditions: slices.Clone(first.Preconditions),
		Arity:         first.Arity,
		Params:        mergeParams(specs),
		Version:       compoundVersion(specs),
		Body: func(ctx context.Context, in Input) ([]models.Payload, error) {
			d, err := dispatcherFrom(ctx)
			if err != nil {
				return nil, err
			}
			log := d.log.WithField("sequence", name)

			refs := itemPaths(in.Items)
			var (
				outputs   []*models.Item
				transient []*models.Item
			)
			for i, step := range specs {
				if len(refs) == 0 {
					return nil, fmt.Errorf("step %s has no inputs", step.Name)
				}
				log.WithFields(logrus.Fields{"step": i + 1, "of": len(specs), "action": step.Name}).Info("running sequence step")
				report, err := d.runPart(ctx, step, refs, in.Params)
				if err != nil {
					return nil, err
				}
				transient = append(transient, transientItems(report.Outputs)...)
				outputs = report.Outputs
				refs = report.OutputPaths()
			}

			payloads := make([]models.Payload, len(outputs))
			for i, out := range outputs {
				payloads[i] = out.Payload()
			}
			d.archiveTransient(log, transient)
			return payloads, nil
		},
	}, nil
}

// NewCombo builds an action that runs every part on the same inputs and
// joins the bodies of all their outputs into one item, in part order. Part
// results are saved as transient items and archived afterwards.
//
// A combo requires the preconditions of all its parts and takes the arity
// of the first.
func NewCombo(reg *Registry, name, description string, parts ...string) (*Spec, error) {
	specs, err := lookupParts(reg, name, parts)
	if err != nil {
		return nil, err
	}
	var preconditions []string
	for _, s := range specs {
		for _, p := range s.Preconditions {
			if !slices.Contains(preconditions, p) {
				preconditions = append(preconditions, p)
			}
		}
	}
	return &Spec{
		Name:          name,
		Description:   compoundDescription(description, "This action combines the outputs of these actions", parts),
		Preconditions: preconditions,
		Arity:         specs[0].Arity,
		Params:        mergeParams(specs),
		Version:       compoundVersion(specs),
		Body: func(ctx context.Context, in Input) ([]models.Payload, error) {
			d, err := dispatcherFrom(ctx)
			if err != nil {
				return nil, err
			}
			if len(in.Items) == 0 {
				return nil, errors.New("nothing to combine")
			}
			log := d.log.WithField("combo", name)

			refs := itemPaths(in.Items)
			var (
				results   []*models.Item
				transient []*models.Item
			)
			for i, part := range specs {
				log.WithFields(logrus.Fields{"part": i + 1, "of": len(specs), "action": part.Name}).Info("running combo part")
				report, err := d.runPart(ctx, part, refs, in.Params)
				if err != nil {
					return nil, err
				}
				if len(report.Outputs) == 0 {
					return nil, fmt.Errorf("%s produced nothing to combine", part.Name)
				}
				transient = append(transient, transientItems(report.Outputs)...)
				results = append(results, report.Outputs...)
			}

			bodies := make([]string, len(results))
			for i, r := range results {
				if r.IsBinary() || strings.TrimSpace(r.Body) == "" {
					return nil, fmt.Errorf("cannot combine %s: no text body", r.Path)
				}
				bodies[i] = strings.TrimSpace(r.Body)
			}
			title := in.Item().DisplayTitle()
			if len(in.Items) > 1 {
				title = fmt.Sprintf("%s and %d more", title, len(in.Items)-1)
			}

			d.archiveTransient(log, transient)
			return []models.Payload{{
				Type:   models.TypeDoc,
				Format: results[0].Format,
				Title:  fmt.Sprintf("%s (%s)", title, name),
				URL:    in.Item().URL,
				Body:   strings.Join(bodies, "\n\n") + "\n",
			}}, nil
		},
	}, nil
}

// runPart runs one step of a compound action without touching the
// selection. Any failed input fails the whole compound action.
func (d *Dispatcher) runPart(ctx context.Context, spec *Spec, refs []string, params map[string]string) (*Report, error) {
	own := make(map[string]string)
	for _, p := range spec.Params {
		if v, ok := params[p.Name]; ok {
			own[p.Name] = v
		}
	}
	report, err := d.Run(ctx, spec.Name, refs, own, WithoutSelection(), transientOutputs())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if len(report.Failures) > 0 {
		return nil, &models.ActionExecutionError{Action: spec.Name, Failures: report.Failures}
	}
	return report, nil
}

func (d *Dispatcher) archiveTransient(log *logrus.Entry, items []*models.Item) {
	for _, item := range items {
		if _, err := d.store.Archive(item.Path); err != nil {
			log.WithError(err).WithField("path", item.Path).Warn("could not archive intermediate item")
		}
	}
}

func lookupParts(reg *Registry, name string, parts []string) ([]*Spec, error) {
	if len(parts) < 2 {
		return nil, fmt.Errorf("action %s needs at least two sub-actions, got %d", name, len(parts))
	}
	specs := make([]*Spec, len(parts))
	for i, part := range parts {
		if part == name {
			return nil, fmt.Errorf("action %s cannot include itself", name)
		}
		s, err := reg.Get(part)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", name, err)
		}
		specs[i] = s
	}
	return specs, nil
}

func mergeParams(specs []*Spec) []Param {
	var params []Param
	seen := make(map[string]bool)
	for _, s := range specs {
		for _, p := range s.Params {
			if !seen[p.Name] {
				seen[p.Name] = true
				params = append(params, p)
			}
		}
	}
	return params
}

func compoundVersion(specs []*Spec) string {
	versions := make([]string, len(specs))
	for i, s := range specs {
		versions[i] = s.Name + "@" + s.Version
	}
	return strings.Join(versions, ",")
}

func compoundDescription(description, lead string, parts []string) string {
	extra := fmt.Sprintf("%s: %s.", lead, strings.Join(parts, ", "))
	if description == "" {
		return extra
	}
	return description + " " + extra
}

func itemPaths(items []*models.Item) []string {
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.Path
	}
	return paths
}

func transientItems(items []*models.Item) []*models.Item {
	var out []*models.Item
	for _, item := range items {
		if item.State == models.StateTransient {
			out = append(out, item)
		}
	}
	return out
}
