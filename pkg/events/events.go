// Package events defines the lifecycle events the engine publishes on
// the bus. Reporters and plugins subscribe to these; the engine has no
// compile-time knowledge of its subscribers.
package events

import (
	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/skuld"
)

const (
	KindRunStarted         = bus.Kind("run-started")
	KindScenarioScheduled  = bus.Kind("scenario-scheduled")
	KindScenarioRunStarted = bus.Kind("scenario-run-started")
	KindStepRunStarted     = bus.Kind("step-run-started")
	KindStepPassed         = bus.Kind("step-passed")
	KindStepFailed         = bus.Kind("step-failed")
	KindScenarioPassed     = bus.Kind("scenario-passed")
	KindScenarioFailed     = bus.Kind("scenario-failed")
	KindScenarioSkipped    = bus.Kind("scenario-skipped")
	KindScenarioInterrupt  = bus.Kind("scenario-interrupted")
	KindScenarioReported   = bus.Kind("scenario-reported")
	KindAttachArtifact     = bus.Kind("attach-artifact")
	KindInterruptRequested = bus.Kind("interrupt-requested")
	KindCleanup            = bus.Kind("cleanup")
	KindRunFinished        = bus.Kind("run-finished")
)

// RunStarted opens the run lifecycle, carrying the scenarios selected
// for execution in their final order.
type RunStarted struct {
	RunID     string
	Seed      int64
	Scenarios []*skuld.Scenario
}

func (RunStarted) Kind() bus.Kind { return KindRunStarted }

// ScenarioScheduled is fired for each scenario the scheduler selected.
type ScenarioScheduled struct {
	Scenario *skuld.Scenario
}

func (ScenarioScheduled) Kind() bus.Kind { return KindScenarioScheduled }

// ScenarioRunStarted is fired before a scenario's first step. Plugins
// may still flip the scenario's skip flag from this handler.
type ScenarioRunStarted struct {
	Result *skuld.ScenarioResult
}

func (ScenarioRunStarted) Kind() bus.Kind { return KindScenarioRunStarted }

type StepRunStarted struct {
	Result *skuld.ScenarioResult
	Step   skuld.Step
}

func (StepRunStarted) Kind() bus.Kind { return KindStepRunStarted }

type StepPassed struct {
	Result     *skuld.ScenarioResult
	StepResult skuld.StepResult
}

func (StepPassed) Kind() bus.Kind { return KindStepPassed }

type StepFailed struct {
	Result     *skuld.ScenarioResult
	StepResult skuld.StepResult
}

func (StepFailed) Kind() bus.Kind { return KindStepFailed }

type ScenarioPassed struct {
	Result *skuld.ScenarioResult
}

func (ScenarioPassed) Kind() bus.Kind { return KindScenarioPassed }

type ScenarioFailed struct {
	Result *skuld.ScenarioResult
}

func (ScenarioFailed) Kind() bus.Kind { return KindScenarioFailed }

type ScenarioSkipped struct {
	Result *skuld.ScenarioResult
}

func (ScenarioSkipped) Kind() bus.Kind { return KindScenarioSkipped }

// ScenarioInterrupted is fired for scenarios drained without execution
// after the stop flag was set, so reporters see a complete accounting.
type ScenarioInterrupted struct {
	Result *skuld.ScenarioResult
}

func (ScenarioInterrupted) Kind() bus.Kind { return KindScenarioInterrupt }

// ScenarioReported closes a scenario's lifecycle with its current
// template aggregate.
type ScenarioReported struct {
	Result    *skuld.ScenarioResult
	Aggregate *skuld.AggregatedResult
}

func (ScenarioReported) Kind() bus.Kind { return KindScenarioReported }

// AttachArtifact is the sanctioned way for observers to contribute an
// artifact to the executing scenario without mutating its result.
type AttachArtifact struct {
	Result   *skuld.ScenarioResult
	Artifact skuld.Artifact
}

func (AttachArtifact) Kind() bus.Kind { return KindAttachArtifact }

// InterruptRequested distinguishes "stopped early" from "ran out of
// scenarios" for reporters.
type InterruptRequested struct {
	Reason string
}

func (InterruptRequested) Kind() bus.Kind { return KindInterruptRequested }

// Cleanup is fired once per run, after the last scenario reported and
// before RunFinished, so plugins can tear down run-scoped resources.
type Cleanup struct {
	Report *skuld.Report
}

func (Cleanup) Kind() bus.Kind { return KindCleanup }

type RunFinished struct {
	Report *skuld.Report
}

func (RunFinished) Kind() bus.Kind { return KindRunFinished }
