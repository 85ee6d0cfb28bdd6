// Package runner drives scenario execution: it consumes scenarios from
// a scheduler one at a time, executes steps strictly in declared order,
// unwinds the cleanup stack, publishes lifecycle events and hands
// finalized results back to the scheduler for aggregation.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/deferrer"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/scheduler"
	"github.com/sre-norns/skuld/pkg/skuld"
)

// Config is the flat option set a driver supplies to the runner.
type Config struct {
	// DryRun validates that every step is resolvable without
	// executing step bodies. The event flow is identical to a real
	// run, so discovery and configuration can be validated end to end.
	DryRun bool
}

// Runner executes scenarios from exactly one scheduler per Run call.
// A single logical worker: scenarios never interleave, and events for
// scenario k are fully published before scenario k+1 begins.
type Runner struct {
	dispatcher *bus.Dispatcher
	runContext *skuld.RunContext
	logger     log.Logger
	config     Config

	globalCleanup *deferrer.Stack
}

func New(dispatcher *bus.Dispatcher, runContext *skuld.RunContext, logger log.Logger, config Config) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	// The runner owns the sanctioned write path into results: observers
	// contribute artifacts by firing AttachArtifact instead of mutating
	// a result they do not own.
	dispatcher.Listen(events.KindAttachArtifact, onAttachArtifact, 0)

	return &Runner{
		dispatcher:    dispatcher,
		runContext:    runContext,
		logger:        logger,
		config:        config,
		globalCleanup: deferrer.NewStack(),
	}
}

func onAttachArtifact(_ context.Context, event bus.Event) error {
	if e, ok := event.(events.AttachArtifact); ok && e.Result != nil {
		e.Result.Attach(e.Artifact)
	}
	return nil
}

// DeferGlobal registers a cleanup action that runs once at the end of
// the whole run, after the last scenario has reported.
func (r *Runner) DeferGlobal(action skuld.Deferred) {
	r.globalCleanup.Defer(action)
}

// Run drains the scheduler and returns the run report. A non-nil error
// means the run aborted on an unrecoverable condition: a failed
// pre-execution event handler, scheduler misuse or a corrupted result
// state machine. Scenario failures are not errors; they are counted in
// the report.
func (r *Runner) Run(ctx context.Context, sched *scheduler.Scheduler) (*skuld.Report, error) {
	if err := sched.Seal(ctx); err != nil {
		return nil, fmt.Errorf("failed to seal the scheduler: %w", err)
	}

	scheduled, err := sched.Scheduled()
	if err != nil {
		return nil, err
	}

	if err := r.dispatcher.Fire(ctx, events.RunStarted{
		RunID:     r.runContext.RunID,
		Seed:      r.runContext.Seed,
		Scenarios: scheduled,
	}); err != nil {
		return nil, fmt.Errorf("run aborted by event handler: %w", err)
	}

	for {
		scenario, err := sched.Next()
		if err == scheduler.ErrExhausted {
			break
		}
		if err != nil {
			return nil, err
		}

		var result *skuld.ScenarioResult
		if r.runContext.IsStopped() && !scenario.RunOnInterrupt {
			result, err = r.drainScenario(ctx, scenario)
		} else {
			result, err = r.runScenario(ctx, scenario)
		}
		if err != nil {
			return nil, err
		}

		if err := r.reportScenario(ctx, sched, result); err != nil {
			return nil, err
		}
	}

	report := r.buildReport(sched)

	for _, err := range r.globalCleanup.Drain() {
		_ = level.Warn(r.logger).Log("msg", "global cleanup action failed", "err", err)
		report.AddSummary(fmt.Sprintf("global cleanup failed: %v", err))
	}

	r.fireBestEffort(ctx, events.Cleanup{Report: report})
	r.fireBestEffort(ctx, events.RunFinished{Report: report})

	return report, nil
}

// drainScenario accounts for a scenario that will never start because
// the stop flag was raised first. Its lifecycle events are still
// published so reporters see a complete accounting.
func (r *Runner) drainScenario(ctx context.Context, scenario *skuld.Scenario) (*skuld.ScenarioResult, error) {
	result := skuld.NewScenarioResult(scenario)
	if err := result.MarkInterrupted(); err != nil {
		return nil, err
	}

	r.fireBestEffort(ctx, events.ScenarioInterrupted{Result: result})
	return result, nil
}

func (r *Runner) runScenario(ctx context.Context, scenario *skuld.Scenario) (*skuld.ScenarioResult, error) {
	result := skuld.NewScenarioResult(scenario)
	if err := result.MarkRunning(); err != nil {
		return nil, err
	}

	// Pre-execution event: a handler failure here is fatal to the run
	// since plugin state may now be inconsistent.
	if err := r.dispatcher.Fire(ctx, events.ScenarioRunStarted{Result: result}); err != nil {
		return nil, fmt.Errorf("run aborted by event handler: %w", err)
	}

	// Plugins may have flipped the skip flag before the first step.
	// A scenario with no steps is an explicit skip too.
	if scenario.IsSkipped() || len(scenario.Steps) == 0 {
		if err := result.MarkSkipped(); err != nil {
			return nil, err
		}
		r.fireBestEffort(ctx, events.ScenarioSkipped{Result: result})
		return result, nil
	}

	cleanup := deferrer.NewStack()
	seed := r.runContext.DeriveSeed(scenario.UniqueID)
	execCtx := skuld.NewExecutionContext(r.runContext.RunID, seed, r.logger, cleanup.Defer, result.Attach)
	execCtx.Params = scenario.Params
	execCtx.DryRun = r.config.DryRun

	result.SetStartedAt(time.Now())

	var stepErr error
	for _, step := range scenario.Steps {
		stepResult, err := r.runStep(ctx, result, step, execCtx)
		if err != nil {
			// Unwind registered cleanup even when aborting the run.
			r.unwindCleanup(cleanup, result)
			return nil, err
		}

		result.AddStepResult(stepResult)
		if stepResult.Status == skuld.StatusFailed {
			// Remaining declared steps are not executed; the
			// cleanup stack still is.
			stepErr = stepResult.Err
			break
		}
	}

	r.unwindCleanup(cleanup, result)
	result.SetEndedAt(time.Now())

	switch {
	case stepErr != nil:
		if err := result.MarkFailed(stepErr); err != nil {
			return nil, err
		}
		r.fireBestEffort(ctx, events.ScenarioFailed{Result: result})
	case len(result.CleanupErrs) > 0:
		// No step failed but cleanup did: the scenario cannot count
		// as passed.
		if err := result.MarkFailed(result.CleanupErrs[0]); err != nil {
			return nil, err
		}
		r.fireBestEffort(ctx, events.ScenarioFailed{Result: result})
	default:
		if err := result.MarkPassed(); err != nil {
			return nil, err
		}
		r.fireBestEffort(ctx, events.ScenarioPassed{Result: result})
	}

	return result, nil
}

func (r *Runner) runStep(ctx context.Context, result *skuld.ScenarioResult,
	step skuld.Step, execCtx *skuld.ExecutionContext) (skuld.StepResult, error) {
	stepResult := skuld.StepResult{
		Name:  step.Name,
		Phase: step.Phase,
	}

	if err := r.dispatcher.Fire(ctx, events.StepRunStarted{Result: result, Step: step}); err != nil {
		return stepResult, fmt.Errorf("run aborted by event handler: %w", err)
	}

	stepResult.StartedAt = time.Now()
	err := r.invokeStep(ctx, step, execCtx)
	stepResult.EndedAt = time.Now()

	if err != nil {
		stepResult.Status = skuld.StatusFailed
		stepResult.Err = err
		r.fireBestEffort(ctx, events.StepFailed{Result: result, StepResult: stepResult})
	} else {
		stepResult.Status = skuld.StatusPassed
		r.fireBestEffort(ctx, events.StepPassed{Result: result, StepResult: stepResult})
	}

	return stepResult, nil
}

// invokeStep executes one step body, converting a panic into a step
// failure so one scenario's crash never takes down the run.
func (r *Runner) invokeStep(ctx context.Context, step skuld.Step, execCtx *skuld.ExecutionContext) (err error) {
	if step.Fn == nil {
		return fmt.Errorf("step %q is not resolvable: no body", step.Name)
	}

	if r.config.DryRun {
		return nil
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("step %q panicked: %v", step.Name, recovered)
		}
	}()

	return step.Fn(ctx, execCtx)
}

func (r *Runner) unwindCleanup(cleanup *deferrer.Stack, result *skuld.ScenarioResult) {
	for _, err := range cleanup.Drain() {
		_ = level.Warn(r.logger).Log(
			"msg", "cleanup action failed",
			"scenario", result.Scenario.UniqueID,
			"err", err,
		)
		result.AddCleanupErr(err)
	}
}

func (r *Runner) reportScenario(ctx context.Context, sched *scheduler.Scheduler, result *skuld.ScenarioResult) error {
	aggregate, err := sched.Report(result)
	if err != nil {
		return err
	}
	if err := result.MarkReported(); err != nil {
		return err
	}

	r.fireBestEffort(ctx, events.ScenarioReported{Result: result, Aggregate: aggregate})
	return nil
}

func (r *Runner) buildReport(sched *scheduler.Scheduler) *skuld.Report {
	report := skuld.NewReport(r.runContext.RunID, r.runContext.Seed)
	for _, aggregate := range sched.Aggregates() {
		report.Add(aggregate)
	}

	report.StoppedEarly = r.runContext.IsStopped()
	if reason := r.runContext.StopReason(); reason != "" {
		report.AddSummary("run interrupted: " + reason)
	}
	report.AddSummary(fmt.Sprintf("seed: %d", r.runContext.Seed))

	return report
}

// fireBestEffort publishes purely observational post-execution events:
// a handler failure is logged and the run continues, since reporting
// is best effort.
func (r *Runner) fireBestEffort(ctx context.Context, event bus.Event) {
	if err := r.dispatcher.Fire(ctx, event); err != nil {
		_ = level.Warn(r.logger).Log("msg", "event handler failed", "event", event.Kind(), "err", err)
	}
}
