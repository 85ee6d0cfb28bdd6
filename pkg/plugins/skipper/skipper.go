// Package skipper narrows a run by scenario labels: selection before
// the scheduler seals, or skip-marking as scenarios are scheduled.
package skipper

import (
	"context"
	"fmt"
	"strings"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/scheduler"
	"github.com/sre-norns/skuld/pkg/skuld"
)

// Mutating plugins run ahead of observers
const pluginPriority = -10

// ParseSelector parses a comma-separated requirement list into a label
// selector. Supported forms per requirement: "key=value", "key!=value",
// "key" (exists) and "!key" (not exists).
func ParseSelector(expr string) (skuld.LabelSelector, error) {
	var result skuld.LabelSelector

	for _, requirement := range strings.Split(expr, ",") {
		requirement = strings.TrimSpace(requirement)
		if requirement == "" {
			continue
		}

		switch {
		case strings.Contains(requirement, "!="):
			parts := strings.SplitN(requirement, "!=", 2)
			if parts[0] == "" {
				return skuld.LabelSelector{}, fmt.Errorf("invalid selector requirement %q: missing key", requirement)
			}
			result.MatchSelector = append(result.MatchSelector, skuld.Selector{
				Key:    parts[0],
				Op:     skuld.OpNotIn,
				Values: []string{parts[1]},
			})
		case strings.Contains(requirement, "="):
			parts := strings.SplitN(requirement, "=", 2)
			if parts[0] == "" {
				return skuld.LabelSelector{}, fmt.Errorf("invalid selector requirement %q: missing key", requirement)
			}
			result.MatchSelector = append(result.MatchSelector, skuld.Selector{
				Key:    parts[0],
				Op:     skuld.OpIn,
				Values: []string{parts[1]},
			})
		case strings.HasPrefix(requirement, "!"):
			result.MatchSelector = append(result.MatchSelector, skuld.Selector{
				Key: strings.TrimPrefix(requirement, "!"),
				Op:  skuld.OpNotExists,
			})
		default:
			result.MatchSelector = append(result.MatchSelector, skuld.Selector{
				Key: requirement,
				Op:  skuld.OpExists,
			})
		}
	}

	return result, nil
}

// Select restricts the scheduler to scenarios matching the selector.
// Must run before the scheduler seals.
func Select(sched *scheduler.Scheduler, selector skuld.LabelSelector) error {
	for _, scenario := range sched.Discovered() {
		if !selector.Matches(scenario.Labels) {
			if err := sched.Ignore(scenario.UniqueID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exclude removes scenarios matching the selector from the run.
// Must run before the scheduler seals.
func Exclude(sched *scheduler.Scheduler, selector skuld.LabelSelector) error {
	for _, scenario := range sched.Discovered() {
		if selector.Matches(scenario.Labels) {
			if err := sched.Ignore(scenario.UniqueID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Skipper flips the skip flag on scheduled scenarios matching its
// selector. Unlike Exclude, skipped scenarios still show up in the
// report.
type Skipper struct {
	selector skuld.LabelSelector
	reason   string
}

func New(selector skuld.LabelSelector, reason string) *Skipper {
	if reason == "" {
		reason = "skipped by label selector"
	}
	return &Skipper{selector: selector, reason: reason}
}

func (s *Skipper) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindScenarioScheduled, s.onScenarioScheduled, pluginPriority)
}

func (s *Skipper) onScenarioScheduled(_ context.Context, event bus.Event) error {
	e, ok := event.(events.ScenarioScheduled)
	if !ok || e.Scenario == nil {
		return nil
	}

	if s.selector.Matches(e.Scenario.Labels) {
		e.Scenario.Skip(s.reason)
	}
	return nil
}
