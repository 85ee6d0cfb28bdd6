// Package repeater re-runs failed scenarios to separate genuine
// failures from flaky ones. A rerun never changes the aggregated
// outcome: a failure stays a failure, but reruns that pass are called
// out in the run summary.
package repeater

import (
	"context"
	"fmt"
	"sync"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/scheduler"
)

// Runs before observers so a restored scenario is queued before
// reporters see the failure
const pluginPriority = 0

type Repeater struct {
	sched    *scheduler.Scheduler
	attempts int

	mu        sync.Mutex
	reruns    map[string]int
	recovered int
}

// New creates a repeater that reruns each failed scenario up to
// attempts extra times on the given scheduler.
func New(sched *scheduler.Scheduler, attempts int) *Repeater {
	return &Repeater{
		sched:    sched,
		attempts: attempts,
		reruns:   make(map[string]int),
	}
}

func (r *Repeater) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindScenarioFailed, r.onScenarioFailed, pluginPriority).
		Listen(events.KindScenarioPassed, r.onScenarioPassed, pluginPriority).
		Listen(events.KindCleanup, r.onCleanup, pluginPriority)
}

func (r *Repeater) onScenarioFailed(_ context.Context, event bus.Event) error {
	e, ok := event.(events.ScenarioFailed)
	if !ok || e.Result == nil {
		return nil
	}

	scenario := e.Result.Scenario

	r.mu.Lock()
	attempted := r.reruns[scenario.UniqueID]
	if attempted >= r.attempts {
		r.mu.Unlock()
		return nil
	}
	r.reruns[scenario.UniqueID] = attempted + 1
	r.mu.Unlock()

	return r.sched.Restore(scenario)
}

func (r *Repeater) onScenarioPassed(_ context.Context, event bus.Event) error {
	e, ok := event.(events.ScenarioPassed)
	if !ok || e.Result == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reruns[e.Result.Scenario.UniqueID] > 0 {
		r.recovered++
	}
	return nil
}

func (r *Repeater) onCleanup(_ context.Context, event bus.Event) error {
	e, ok := event.(events.Cleanup)
	if !ok || e.Report == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, count := range r.reruns {
		total += count
	}
	if total == 0 {
		return nil
	}

	e.Report.AddSummary(fmt.Sprintf("reran %d failed scenario(s) %d time(s), %d passed on rerun (flaky)",
		len(r.reruns), total, r.recovered))
	return nil
}
