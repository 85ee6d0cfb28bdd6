package skuld

import (
	"fmt"
	"time"
)

// Status represents the state of a scenario within a run
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusInterrupted Status = "interrupted"
)

// ErrInvalidTransition indicates a corrupted result state machine.
// Not recoverable: the run must terminate rather than produce a
// misleading partial result.
var ErrInvalidTransition = fmt.Errorf("invalid scenario status transition")

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusInterrupted},
	StatusRunning: {StatusPassed, StatusFailed, StatusSkipped, StatusInterrupted},
}

func (s Status) canTransition(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transition is legal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusInterrupted:
		return true
	}
	return false
}

// StepResult is the recorded outcome of one step invocation
type StepResult struct {
	Name      string
	Phase     StepPhase
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time

	// Err captured when the step failed
	Err error
}

func (r StepResult) Elapsed() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// ScenarioResult is the mutable record attached 1:1 to a scenario for
// the duration of one run. Owned exclusively by the runner while the
// scenario executes; never reused across runs.
type ScenarioResult struct {
	Scenario *Scenario

	status      Status
	startedAt   time.Time
	endedAt     time.Time
	stepResults []StepResult
	artifacts   []Artifact
	reported    bool

	// Err is the primary cause of failure: the first failed step, or
	// the first cleanup error when no step failed
	Err error

	// CleanupErrs are failures raised while unwinding the cleanup
	// stack. Auxiliary: they never replace a step failure as the
	// primary cause.
	CleanupErrs []error
}

func NewScenarioResult(scenario *Scenario) *ScenarioResult {
	return &ScenarioResult{
		Scenario: scenario,
		status:   StatusPending,
	}
}

func (r *ScenarioResult) Status() Status { return r.status }

func (r *ScenarioResult) transition(to Status) error {
	if !r.status.canTransition(to) {
		return fmt.Errorf("%w: %q -> %q for scenario %q",
			ErrInvalidTransition, r.status, to, r.Scenario.UniqueID)
	}
	r.status = to
	return nil
}

func (r *ScenarioResult) MarkRunning() error { return r.transition(StatusRunning) }
func (r *ScenarioResult) MarkPassed() error  { return r.transition(StatusPassed) }
func (r *ScenarioResult) MarkSkipped() error { return r.transition(StatusSkipped) }

func (r *ScenarioResult) MarkFailed(cause error) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	if r.Err == nil {
		r.Err = cause
	}
	return nil
}

func (r *ScenarioResult) MarkInterrupted() error { return r.transition(StatusInterrupted) }

func (r *ScenarioResult) IsPassed() bool      { return r.status == StatusPassed }
func (r *ScenarioResult) IsFailed() bool      { return r.status == StatusFailed }
func (r *ScenarioResult) IsSkipped() bool     { return r.status == StatusSkipped }
func (r *ScenarioResult) IsInterrupted() bool { return r.status == StatusInterrupted }

func (r *ScenarioResult) SetStartedAt(t time.Time) { r.startedAt = t }
func (r *ScenarioResult) SetEndedAt(t time.Time)   { r.endedAt = t }

func (r *ScenarioResult) StartedAt() time.Time { return r.startedAt }
func (r *ScenarioResult) EndedAt() time.Time   { return r.endedAt }

func (r *ScenarioResult) Elapsed() time.Duration {
	if r.startedAt.IsZero() || r.endedAt.IsZero() {
		return 0
	}
	return r.endedAt.Sub(r.startedAt)
}

func (r *ScenarioResult) AddStepResult(step StepResult) {
	r.stepResults = append(r.stepResults, step)
}

// StepResults returns a copy of the per-step outcomes in declared order.
func (r *ScenarioResult) StepResults() []StepResult {
	results := make([]StepResult, len(r.stepResults))
	copy(results, r.stepResults)
	return results
}

func (r *ScenarioResult) Attach(artifact Artifact) {
	r.artifacts = append(r.artifacts, artifact)
}

func (r *ScenarioResult) Artifacts() []Artifact {
	artifacts := make([]Artifact, len(r.artifacts))
	copy(artifacts, r.artifacts)
	return artifacts
}

// AddCleanupErr records a cleanup-stack failure. Upgrades a result
// that has no primary cause yet, but never overrides a step failure.
func (r *ScenarioResult) AddCleanupErr(err error) {
	r.CleanupErrs = append(r.CleanupErrs, err)
	if r.Err == nil {
		r.Err = err
	}
}

// MarkReported seals the result once it has been handed to the
// scheduler for aggregation. Reporting twice is a programming error.
func (r *ScenarioResult) MarkReported() error {
	if !r.status.IsTerminal() {
		return fmt.Errorf("%w: cannot report non-terminal status %q", ErrInvalidTransition, r.status)
	}
	if r.reported {
		return fmt.Errorf("scenario %q result reported twice", r.Scenario.UniqueID)
	}
	r.reported = true
	return nil
}

func (r *ScenarioResult) IsReported() bool { return r.reported }

// AggregatedResult combines all scenario results sharing one template
// identity. Recomputed every time a member result is finalized;
// recomputing with the same member set yields the same status.
type AggregatedResult struct {
	// TemplateID is the grouping key shared by all members
	TemplateID string

	// Primary is the member result that determines the aggregate
	// status: the first failure when any member failed, otherwise a
	// representative member
	Primary *ScenarioResult

	Results []*ScenarioResult

	status Status
}

func (a *AggregatedResult) Status() Status { return a.status }

func (a *AggregatedResult) IsPassed() bool      { return a.status == StatusPassed }
func (a *AggregatedResult) IsFailed() bool      { return a.status == StatusFailed }
func (a *AggregatedResult) IsSkipped() bool     { return a.status == StatusSkipped }
func (a *AggregatedResult) IsInterrupted() bool { return a.status == StatusInterrupted }

// AggregateResults computes the combined outcome of a template's
// member results:
//   - failed if any member failed;
//   - else interrupted if any member was interrupted;
//   - else passed if at least one member passed (the rest skipped);
//   - else skipped, including the degenerate zero-member template.
func AggregateResults(templateID string, results []*ScenarioResult) *AggregatedResult {
	aggregate := &AggregatedResult{
		TemplateID: templateID,
		Results:    results,
		status:     StatusSkipped,
	}

	for _, result := range results {
		switch {
		case result.IsFailed():
			aggregate.status = StatusFailed
			aggregate.Primary = result
			return aggregate
		case result.IsInterrupted() && aggregate.status != StatusInterrupted:
			aggregate.status = StatusInterrupted
			aggregate.Primary = result
		case result.IsPassed() && aggregate.status == StatusSkipped:
			aggregate.status = StatusPassed
			aggregate.Primary = result
		}
	}

	if aggregate.Primary == nil && len(results) > 0 {
		aggregate.Primary = results[len(results)-1]
	}

	return aggregate
}
