package action

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/provenance"
	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/store"
)

// Dispatcher runs registered actions: it resolves inputs, checks
// preconditions, consults the cache, invokes bodies, persists outputs and
// updates the selection.
type Dispatcher struct {
	registry *Registry
	store    *store.Store
	cache    *provenance.Cache
	history  *selection.History
	log      *logrus.Entry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// NewDispatcher wires a dispatcher. history may be nil, in which case runs
// need explicit inputs and never update a selection.
func NewDispatcher(reg *Registry, st *store.Store, cache *provenance.Cache, history *selection.History, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    st,
		cache:    cache,
		history:  history,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.Component(d.log, "dispatch")
	return d
}

type runOptions struct {
	rerun           bool
	keepSelection   bool
	transient       bool
	workspaceParams map[string]string
}

// RunOption configures one Run call.
type RunOption func(*runOptions)

// WithRerun skips the cache lookup. The fresh result replaces the cache
// entry.
func WithRerun() RunOption {
	return func(o *runOptions) {
		o.rerun = true
	}
}

// WithoutSelection leaves the selection untouched after the run.
func WithoutSelection() RunOption {
	return func(o *runOptions) {
		o.keepSelection = true
	}
}

// WithWorkspaceParams supplies parameter values that apply when a declared
// parameter is not given explicitly.
func WithWorkspaceParams(params map[string]string) RunOption {
	return func(o *runOptions) {
		o.workspaceParams = params
	}
}

// transientOutputs saves outputs in the transient state, for intermediate
// results of a compound action.
func transientOutputs() RunOption {
	return func(o *runOptions) {
		o.transient = true
	}
}

// unit is one body invocation.
type unit struct {
	items []*models.Item
}

func (u unit) identities() []string {
	ids := make([]string, len(u.items))
	for i, item := range u.items {
		ids[i] = item.Identity
	}
	return ids
}

func (u unit) label() string {
	paths := make([]string, len(u.items))
	for i, item := range u.items {
		paths[i] = item.Path
	}
	return strings.Join(paths, ", ")
}

// Run invokes action name on refs, or on the current selection when refs
// is empty. Typed errors from pkg/models report unknown actions or items,
// unmet preconditions, bad parameters and total failure. Per-input body
// failures are collected in the report.
func (d *Dispatcher) Run(ctx context.Context, name string, refs []string, params map[string]string, opts ...RunOption) (*Report, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	spec, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}
	report := NewReport(spec.Name)
	log := d.log.WithField("action", spec.Name)

	if len(refs) == 0 && d.history != nil {
		refs = d.history.Current()
		if len(refs) > 0 {
			log.WithField("inputs", refs).Debug("using selection as inputs")
		}
	}
	if err := spec.CheckCount(len(refs)); err != nil {
		return nil, err
	}

	items, err := d.loadInputs(spec, refs, report)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		report.Inputs = append(report.Inputs, item.Path)
		if ok, failed := d.registry.Check(spec, item); !ok {
			return nil, &models.PreconditionError{Action: spec.Name, Precondition: failed, Path: item.Path}
		}
	}

	resolved, err := spec.ResolveParams(params, o.workspaceParams)
	if err != nil {
		return nil, err
	}

	var units []unit
	switch spec.Arity {
	case Single:
		for _, item := range items {
			units = append(units, unit{items: []*models.Item{item}})
		}
	case List:
		if len(items) > 0 {
			units = []unit{{items: items}}
		}
	case Either:
		units = []unit{{items: items}}
	}
	report.Units = len(units) + len(report.Failures)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run %s: %w", spec.Name, err)
		}
		outputs, cached, err := d.runUnit(ctx, spec, u, resolved, o)
		if err != nil {
			var failure *bodyError
			if errors.As(err, &failure) {
				log.WithError(failure.err).WithField("input", u.label()).Warn("action failed on input")
				report.AddFailure(u.label(), failure.err)
				continue
			}
			return report, err
		}
		if cached {
			report.CacheHits++
		} else {
			report.Ran++
		}
		report.Outputs = append(report.Outputs, outputs...)
	}
	report.Complete()

	if len(report.Outputs) == 0 && len(report.Failures) > 0 {
		return report, &models.ActionExecutionError{Action: spec.Name, Failures: report.Failures}
	}

	if !o.keepSelection && d.history != nil && len(report.Outputs) > 0 {
		d.history.Push(selection.New(report.OutputPaths()...))
	}

	log.WithFields(logrus.Fields{
		"outputs":    len(report.Outputs),
		"failures":   len(report.Failures),
		"cache_hits": report.CacheHits,
		"duration":   report.Duration(),
	}).Info("action complete")
	return report, nil
}

// loadInputs resolves refs to items. A missing item aborts the run. For
// Single actions an unparseable header only fails that input.
func (d *Dispatcher) loadInputs(spec *Spec, refs []string, report *Report) ([]*models.Item, error) {
	items := make([]*models.Item, 0, len(refs))
	for _, ref := range refs {
		item, err := d.store.Load(ref)
		if err != nil {
			var malformed *models.MalformedMetadataError
			if spec.Arity == Single && errors.As(err, &malformed) {
				report.AddFailure(ref, err)
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// bodyError marks a failure of the action body itself, as opposed to an
// environment error while persisting its result.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

func (d *Dispatcher) runUnit(ctx context.Context, spec *Spec, u unit, params map[string]string, o runOptions) ([]*models.Item, bool, error) {
	identities := u.identities()
	key, err := provenance.Key(spec.Name, spec.Version, params, identities)
	if err != nil {
		return nil, false, err
	}
	log := d.log.WithFields(logrus.Fields{"action": spec.Name, "key": provenance.ShortKey(key)})

	if !o.rerun {
		outputs, hit, err := d.cache.Get(key)
		if err != nil {
			return nil, false, err
		}
		if hit {
			log.Debug("cache hit")
			return outputs, true, nil
		}
	}

	inputs := make([]*models.Item, len(u.items))
	for i, item := range u.items {
		inputs[i] = item.Clone()
	}
	payloads, err := invoke(withDispatcher(ctx, d), spec, Input{Items: inputs, Params: maps.Clone(params)})
	if err != nil {
		return nil, false, &bodyError{err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("run %s: %w", spec.Name, err)
	}

	outputs := make([]*models.Item, 0, len(payloads))
	for _, p := range payloads {
		item := p.Item()
		item.State = models.StateInWorkspace
		if o.transient {
			item.State = models.StateTransient
		}
		item.Relations = models.Relations{
			DerivedFrom: identities,
			DerivedBy:   &models.DerivedBy{Action: spec.Name, Params: maps.Clone(params)},
		}
		saved, err := d.store.Save(item)
		if err != nil {
			return nil, false, fmt.Errorf("save output of %s: %w", spec.Name, err)
		}
		outputs = append(outputs, saved)
	}

	if err := d.cache.Put(key, spec.Name, outputs); err != nil {
		return nil, false, err
	}
	log.WithField("outputs", len(outputs)).Debug("cached result")
	return outputs, false, nil
}

func invoke(ctx context.Context, spec *Spec, in Input) (payloads []models.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", spec.Name, r)
		}
	}()
	return spec.Body(ctx, in)
}
