// Package interrupt halts scheduling of new scenarios when a failure
// threshold is reached or an external cancellation signal arrives.
// It never aborts a scenario already in flight: a scenario's result is
// always either fully executed or never started.
package interrupt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/skuld"
)

// Policy configures when the interrupter trips.
type Policy struct {
	// FailFastAfter stops the run once this many scenarios have
	// failed. Zero disables failure-based interruption; the run then
	// stops only on an external signal.
	FailFastAfter int
}

// Interrupter observes failure events and raises the run's stop flag.
type Interrupter struct {
	runContext *skuld.RunContext
	dispatcher *bus.Dispatcher
	policy     Policy
	logger     log.Logger

	failed atomic.Int64
}

func New(runContext *skuld.RunContext, dispatcher *bus.Dispatcher, policy Policy, logger log.Logger) *Interrupter {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Interrupter{
		runContext: runContext,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// Subscribe registers the interrupter on the bus.
func (i *Interrupter) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindStepFailed, i.onStepFailed, 0).
		Listen(events.KindScenarioFailed, i.onScenarioFailed, 0)
}

func (i *Interrupter) onStepFailed(_ context.Context, event bus.Event) error {
	failed, ok := event.(events.StepFailed)
	if !ok {
		return nil
	}

	_ = level.Debug(i.logger).Log(
		"msg", "step failed",
		"scenario", failed.Result.Scenario.UniqueID,
		"step", failed.StepResult.Name,
	)
	return nil
}

func (i *Interrupter) onScenarioFailed(ctx context.Context, event bus.Event) error {
	if _, ok := event.(events.ScenarioFailed); !ok {
		return nil
	}

	failed := i.failed.Add(1)
	if i.policy.FailFastAfter > 0 && failed >= int64(i.policy.FailFastAfter) {
		i.Trigger(ctx, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}

// Trigger raises the stop flag and announces the interruption so
// reporters can distinguish "stopped early" from "queue exhausted".
// Idempotent: only the first trigger publishes the event.
func (i *Interrupter) Trigger(ctx context.Context, reason string) {
	if !i.runContext.Stop(reason) {
		return
	}

	_ = level.Info(i.logger).Log("msg", "interrupt requested", "reason", reason)

	// Best effort: a reporter failing to observe the interruption
	// must not mask the interruption itself.
	if err := i.dispatcher.Fire(ctx, events.InterruptRequested{Reason: reason}); err != nil {
		_ = level.Warn(i.logger).Log("msg", "interrupt event handler failed", "err", err)
	}
}

// WatchSignal trips the interrupter when the given context is
// cancelled, typically by a process signal handler. Returns once the
// watch goroutine is running; the stop channel ends the watch.
func (i *Interrupter) WatchSignal(ctx context.Context, stop <-chan struct{}) {
	go func() {
		select {
		case <-ctx.Done():
			i.Trigger(context.Background(), "external signal")
		case <-stop:
		}
	}()
}
