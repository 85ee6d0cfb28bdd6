package skuld

import (
	"context"
	"math/rand"

	"github.com/go-kit/log"
)

// StepPhase is the conventional grouping of a step within a scenario.
type StepPhase string

const (
	PhaseSetup     StepPhase = "setup"
	PhaseAction    StepPhase = "action"
	PhaseAssertion StepPhase = "assertion"
)

// Deferred is a cleanup action registered during step execution.
type Deferred func() error

// ExecutionContext is handed to every step invocation. It carries the
// per-scenario deterministic random source and the hooks a step body
// may use to register cleanup actions and attach artifacts.
type ExecutionContext struct {
	// RunID identifies the run this scenario executes within
	RunID string

	// Seed this scenario's Rand was derived from
	Seed int64

	// Rand is seeded deterministically from the run seed and the
	// scenario unique id, so a single scenario re-run reproduces the
	// randomness it saw inside a full run
	Rand *rand.Rand

	Logger log.Logger

	// Params is the parameter set of the executing scenario variant
	Params Labels

	// DryRun is set when steps are being validated, not executed
	DryRun bool

	deferFn  func(Deferred)
	attachFn func(Artifact)
}

func NewExecutionContext(runID string, seed int64, logger log.Logger,
	deferFn func(Deferred), attachFn func(Artifact)) *ExecutionContext {
	return &ExecutionContext{
		RunID:    runID,
		Seed:     seed,
		Rand:     rand.New(rand.NewSource(seed)),
		Logger:   logger,
		deferFn:  deferFn,
		attachFn: attachFn,
	}
}

// Defer registers a cleanup action to run when the scenario finishes,
// in reverse registration order.
func (c *ExecutionContext) Defer(action Deferred) {
	if c.deferFn != nil {
		c.deferFn(action)
	}
}

// Attach adds an artifact to the result of the executing scenario.
func (c *ExecutionContext) Attach(artifact Artifact) {
	if c.attachFn != nil {
		c.attachFn(artifact)
	}
}

// StepFn is the body of a step. A step may block on the context to
// perform asynchronous work; the runner awaits completion before
// publishing the step outcome.
type StepFn func(ctx context.Context, ec *ExecutionContext) error

// Step is a named, ordered unit of behavior belonging to a scenario
type Step struct {
	Name  string
	Phase StepPhase
	Fn    StepFn
}

// Scenario is the engine's runtime view of one user-authored test case,
// or of one variant of a parametrized test case. Assembled by a
// discovery collaborator; the engine never re-derives identity.
type Scenario struct {
	// UniqueID is stable across runs: derived from source location,
	// declared name and parameter set, never from registration order
	UniqueID string

	// TemplateID groups parametrized variants of one declared scenario
	// for result aggregation. Equals UniqueID for plain scenarios.
	TemplateID string

	// TemplateIndex/TemplateTotal position this variant within its
	// template; both zero for plain scenarios
	TemplateIndex int
	TemplateTotal int

	// Name as declared in the source manifest
	Name string

	// Source is the path of the manifest that declared the scenario
	Source string

	Labels Labels

	// Params is the parameter set of this variant; empty for plain
	// scenarios
	Params Labels

	Steps []Step

	// RunOnInterrupt marks the scenario as not eligible for the
	// interrupted drain: it executes even after the stop flag is set
	RunOnInterrupt bool

	skipped    bool
	skipReason string
}

// Skip marks the scenario to be skipped with an optional reason.
// The skip flag is the only field plugins may mutate after scheduling,
// and only before the scenario's first step executes.
func (s *Scenario) Skip(reason string) {
	s.skipped = true
	if reason != "" {
		s.skipReason = reason
	}
}

func (s *Scenario) IsSkipped() bool {
	return s.skipped
}

func (s *Scenario) SkipReason() string {
	return s.skipReason
}

// IsTemplated reports whether this scenario is one variant of a
// parametrized template.
func (s *Scenario) IsTemplated() bool {
	return s.TemplateTotal > 0
}
