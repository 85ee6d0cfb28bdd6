// Package scheduler owns the live scenario queue of a run and the set
// of per-template aggregated results. Exactly one runner consumes a
// scheduler; concurrent consumption is a programming error and is
// surfaced, never silently tolerated.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/orderer"
	"github.com/sre-norns/skuld/pkg/skuld"
)

var (
	// ErrExhausted signals the queue has no more scenarios to yield
	ErrExhausted = fmt.Errorf("no more scenarios scheduled")

	// ErrSealed is returned when selection is mutated after iteration began
	ErrSealed = fmt.Errorf("scheduler already sealed: selection cannot change once iteration has begun")

	ErrNotSealed = fmt.Errorf("scheduler not sealed yet")

	// ErrConcurrentNext indicates two consumers driving one scheduler
	ErrConcurrentNext = fmt.Errorf("concurrent Next calls: a scheduler has exactly one consumer")

	ErrUnknownScenario = fmt.Errorf("scenario was not discovered by this scheduler")
)

// Scheduler holds the ordered scenario collection, per-scenario
// scheduled/ignored flags and the aggregated results of the run.
type Scheduler struct {
	dispatcher *bus.Dispatcher
	orderer    orderer.Orderer

	mu         sync.Mutex
	discovered []*skuld.Scenario
	byID       map[string]*skuld.Scenario
	ignored    map[string]bool
	only       map[string]bool
	sealed     bool

	queue     []*skuld.Scenario
	scheduled []*skuld.Scenario

	nextBusy atomic.Bool

	templateOrder []string
	members       map[string][]*skuld.ScenarioResult
	aggregates    map[string]*skuld.AggregatedResult
}

// New creates a scheduler over an already-discovered, already-validated
// scenario sequence. Identity is taken as-is; the scheduler never
// re-derives it.
func New(scenarios []*skuld.Scenario, order orderer.Orderer, dispatcher *bus.Dispatcher) *Scheduler {
	if order == nil {
		order = orderer.Stable{}
	}

	byID := make(map[string]*skuld.Scenario, len(scenarios))
	for _, scenario := range scenarios {
		byID[scenario.UniqueID] = scenario
	}

	return &Scheduler{
		dispatcher: dispatcher,
		orderer:    order,
		discovered: scenarios,
		byID:       byID,
		ignored:    make(map[string]bool),
		only:       make(map[string]bool),
		members:    make(map[string][]*skuld.ScenarioResult),
		aggregates: make(map[string]*skuld.AggregatedResult),
	}
}

// Discovered returns the scenario set in discovery order.
func (s *Scheduler) Discovered() []*skuld.Scenario {
	scenarios := make([]*skuld.Scenario, len(s.discovered))
	copy(scenarios, s.discovered)
	return scenarios
}

// Ignore excludes scenarios whose unique id equals or starts with the
// given value. Must be called before iteration starts.
func (s *Scheduler) Ignore(idOrPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}

	matched := false
	for _, scenario := range s.discovered {
		if scenario.UniqueID == idOrPrefix || strings.HasPrefix(scenario.UniqueID, idOrPrefix) {
			s.ignored[scenario.UniqueID] = true
			matched = true
		}
	}

	if !matched {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, idOrPrefix)
	}
	return nil
}

// Only restricts the run to the named scenario. May be called multiple
// times to build up the allowed set. Must be called before iteration
// starts.
func (s *Scheduler) Only(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}

	if _, known := s.byID[id]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	s.only[id] = true
	return nil
}

// Seal fixes the selection, applies the ordering strategy and fires a
// ScenarioScheduled event for every selected scenario. Idempotent.
func (s *Scheduler) Seal(ctx context.Context) error {
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return nil
	}
	s.sealed = true

	selected := make([]*skuld.Scenario, 0, len(s.discovered))
	for _, scenario := range s.discovered {
		if s.ignored[scenario.UniqueID] {
			continue
		}
		if len(s.only) > 0 && !s.only[scenario.UniqueID] {
			continue
		}
		selected = append(selected, scenario)
	}

	s.scheduled = s.orderer.Order(selected)
	s.queue = make([]*skuld.Scenario, len(s.scheduled))
	copy(s.queue, s.scheduled)
	s.mu.Unlock()

	if s.dispatcher == nil {
		return nil
	}

	for _, scenario := range s.scheduled {
		if err := s.dispatcher.Fire(ctx, events.ScenarioScheduled{Scenario: scenario}); err != nil {
			return err
		}
	}
	return nil
}

// Scheduled returns the selected scenarios in execution order.
func (s *Scheduler) Scheduled() ([]*skuld.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return nil, ErrNotSealed
	}

	scenarios := make([]*skuld.Scenario, len(s.scheduled))
	copy(scenarios, s.scheduled)
	return scenarios, nil
}

// Next yields the next scenario to execute, or ErrExhausted. Single
// consumer iterator semantics: the runner driving this scheduler is
// the only legitimate caller.
func (s *Scheduler) Next() (*skuld.Scenario, error) {
	if !s.nextBusy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentNext
	}
	defer s.nextBusy.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return nil, ErrNotSealed
	}

	if len(s.queue) == 0 {
		return nil, ErrExhausted
	}

	scenario := s.queue[0]
	s.queue = s.queue[1:]
	return scenario, nil
}

// Restore re-queues a scenario at the front of the queue, so a retried
// variant stays adjacent to its template group. The queue remains
// owned by this scheduler; retry plugins use Restore instead of
// side channels.
func (s *Scheduler) Restore(scenario *skuld.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return ErrNotSealed
	}
	if _, known := s.byID[scenario.UniqueID]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, scenario.UniqueID)
	}

	s.queue = append([]*skuld.Scenario{scenario}, s.queue...)
	return nil
}

// Remaining returns the number of scenarios still queued.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Report hands a finalized scenario result to the scheduler, which
// recomputes the owning template aggregate. Recomputation is
// idempotent in the member set.
func (s *Scheduler) Report(result *skuld.ScenarioResult) (*skuld.AggregatedResult, error) {
	if !result.Status().IsTerminal() {
		return nil, fmt.Errorf("cannot aggregate non-terminal result %q for scenario %q",
			result.Status(), result.Scenario.UniqueID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templateID := result.Scenario.TemplateID
	if templateID == "" {
		templateID = result.Scenario.UniqueID
	}

	if _, seen := s.members[templateID]; !seen {
		s.templateOrder = append(s.templateOrder, templateID)
	}
	s.members[templateID] = append(s.members[templateID], result)

	aggregate := skuld.AggregateResults(templateID, s.members[templateID])
	s.aggregates[templateID] = aggregate
	return aggregate, nil
}

// Aggregates returns the aggregated results in first-reported template
// order.
func (s *Scheduler) Aggregates() []*skuld.AggregatedResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	aggregates := make([]*skuld.AggregatedResult, 0, len(s.templateOrder))
	for _, templateID := range s.templateOrder {
		aggregates = append(aggregates, s.aggregates[templateID])
	}
	return aggregates
}
