package action

import (
	"fmt"
	"time"

	"github.com/grovetools/kw/pkg/models"
)

// Report summarizes one dispatch.
type Report struct {
	Action    string
	Inputs    []string
	Outputs   []*models.Item
	Failures  []models.Failure
	Units     int
	Ran       int
	CacheHits int
	StartTime time.Time
	EndTime   time.Time
}

// NewReport starts a report for action.
func NewReport(action string) *Report {
	return &Report{
		Action:    action,
		StartTime: time.Now(),
	}
}

// AddFailure records an input the action could not process.
func (r *Report) AddFailure(path string, err error) {
	r.Failures = append(r.Failures, models.Failure{Path: path, Err: err})
}

// Complete marks the report as finished.
func (r *Report) Complete() {
	r.EndTime = time.Now()
}

// Duration returns how long the dispatch took.
func (r *Report) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Succeeded returns the number of invocations that produced a result.
func (r *Report) Succeeded() int {
	return r.Units - len(r.Failures)
}

// Partial reports whether some but not all invocations failed.
func (r *Report) Partial() bool {
	return len(r.Failures) > 0 && r.Succeeded() > 0
}

// OutputPaths returns the paths of the outputs in order.
func (r *Report) OutputPaths() []string {
	paths := make([]string, len(r.Outputs))
	for i, item := range r.Outputs {
		paths[i] = item.Path
	}
	return paths
}

// Summary is a one-line description of the outcome.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%s: %d succeeded, %d failed, %d outputs", r.Action, r.Succeeded(), len(r.Failures), len(r.Outputs))
	if r.CacheHits > 0 {
		s += fmt.Sprintf(" (%d cached)", r.CacheHits)
	}
	return s
}
