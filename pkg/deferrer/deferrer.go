// Package deferrer implements the scoped cleanup stack: a LIFO of
// zero-argument actions guaranteed to run exactly once when the owning
// scope ends. It is the engine's only resource-scoping primitive;
// higher-level fixture plugins are built on it.
package deferrer

import "github.com/sre-norns/skuld/pkg/skuld"

// Stack is a cleanup stack scoped to one scenario run (or to the whole
// run, for the run-scoped instance). Not safe for concurrent use: a
// stack is owned exclusively by the scenario currently executing.
type Stack struct {
	actions []skuld.Deferred
	drained bool
}

func NewStack() *Stack {
	return &Stack{}
}

// Defer pushes a cleanup action. Actions registered while the stack is
// draining are honored too, so nested resource teardown composes.
func (s *Stack) Defer(action skuld.Deferred) {
	if action == nil {
		return
	}
	s.actions = append(s.actions, action)
}

// Len returns the number of actions not yet drained.
func (s *Stack) Len() int {
	return len(s.actions)
}

// Drain runs every registered action in reverse registration order,
// exactly once each, regardless of action failures. Failures are
// collected and returned; they never stop the unwinding.
func (s *Stack) Drain() []error {
	var errs []error

	// Pop one at a time: an action may Defer more work onto the stack
	// and it must drain in the same pass.
	for len(s.actions) > 0 {
		last := len(s.actions) - 1
		action := s.actions[last]
		s.actions = s.actions[:last]

		if err := action(); err != nil {
			errs = append(errs, err)
		}
	}

	s.drained = true
	return errs
}

// IsDrained reports whether Drain completed at least once.
func (s *Stack) IsDrained() bool {
	return s.drained
}
