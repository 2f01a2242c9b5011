// Package actions provides the built-in action bodies. None of them touch
// the network; collaborators that do, such as a Transcriber, are supplied
// by the caller.
package actions

import (
	"github.com/grovetools/kw/pkg/action"
)

type options struct {
	transcriber Transcriber
}

// Option configures RegisterBuiltins.
type Option func(*options)

// WithTranscriber enables the transcribe action.
func WithTranscriber(t Transcriber) Option {
	return func(o *options) {
		o.transcriber = t
	}
}

// Builtins returns the built-in action specs in display order.
func Builtins(opts ...Option) []*action.Spec {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	specs := []*action.Spec{
		BreakIntoParagraphs(),
		StripHTML(),
		MarkdownToHTML(),
		Concat(),
		CopyItems(),
	}
	if o.transcriber != nil {
		specs = append(specs, Transcribe(o.transcriber))
	}
	return specs
}

// RegisterBuiltins adds the built-in actions to reg, followed by the
// compound actions built from them.
func RegisterBuiltins(reg *action.Registry, opts ...Option) error {
	if err := reg.Register(Builtins(opts...)...); err != nil {
		return err
	}
	compounds, err := Compounds(reg)
	if err != nil {
		return err
	}
	return reg.Register(compounds...)
}
