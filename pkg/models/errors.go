package models

import (
	"fmt"
	"strings"
)

// PreconditionError is returned when an input does not satisfy one of an
// action's preconditions. Nothing has been written when it is returned.
type PreconditionError struct {
	Action       string
	Precondition string
	Path         string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("action %s requires %s: not satisfied by %s", e.Action, e.Precondition, e.Path)
}

// NotFoundError is returned for unknown items, actions or identities.
type NotFoundError struct {
	Kind        string
	Ref         string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// MalformedMetadataError is returned when an item header cannot be parsed.
type MalformedMetadataError struct {
	Path string
	Err  error
}

func (e *MalformedMetadataError) Error() string {
	return fmt.Sprintf("malformed metadata in %s: %v", e.Path, e.Err)
}

func (e *MalformedMetadataError) Unwrap() error {
	return e.Err
}

// DuplicateActionError is returned when two actions register the same name.
type DuplicateActionError struct {
	Name string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action already registered: %s", e.Name)
}

// InvalidInputError is returned when an action is given the wrong number
// of inputs or unusable parameters.
type InvalidInputError struct {
	Action string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Action == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Action, e.Reason)
}

// Failure records one input that an action could not process.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) String() string {
	if f.Path == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// ActionExecutionError is returned when an action produced no output and
// at least one invocation failed.
type ActionExecutionError struct {
	Action   string
	Failures []Failure
}

func (e *ActionExecutionError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("action %s failed: %s", e.Action, e.Failures[0])
	}
	return fmt.Sprintf("action %s failed on all %d inputs", e.Action, len(e.Failures))
}

func (e *ActionExecutionError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
