package interrupt_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/interrupt"
	"github.com/sre-norns/skuld/pkg/runner"
	"github.com/sre-norns/skuld/pkg/scheduler"
	"github.com/sre-norns/skuld/pkg/skuld"
)

func failingScenario(id string) *skuld.Scenario {
	return &skuld.Scenario{
		UniqueID: id,
		Steps: []skuld.Step{
			{Name: "explode", Fn: func(ctx context.Context, execCtx *skuld.ExecutionContext) error {
				return fmt.Errorf("%s failed", id)
			}},
		},
	}
}

func passingScenario(id string) *skuld.Scenario {
	return &skuld.Scenario{
		UniqueID: id,
		Steps: []skuld.Step{
			{Name: "fine", Fn: func(ctx context.Context, execCtx *skuld.ExecutionContext) error {
				return nil
			}},
		},
	}
}

func TestInterrupter_FailFast(t *testing.T) {
	testCases := map[string]struct {
		failFastAfter     int
		expectFailed      int
		expectInterrupted int
		expectStopped     bool
	}{
		"disabled": {
			failFastAfter:     0,
			expectFailed:      3,
			expectInterrupted: 0,
			expectStopped:     false,
		},
		"after-first": {
			failFastAfter:     1,
			expectFailed:      1,
			expectInterrupted: 3,
			expectStopped:     true,
		},
		"after-second": {
			failFastAfter:     2,
			expectFailed:      2,
			expectInterrupted: 2,
			expectStopped:     true,
		},
		"threshold-above-failures": {
			failFastAfter:     5,
			expectFailed:      3,
			expectInterrupted: 0,
			expectStopped:     false,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			runContext := skuld.NewRunContext(1)
			dispatcher := bus.NewDispatcher()

			interrupter := interrupt.New(runContext, dispatcher, interrupt.Policy{FailFastAfter: test.failFastAfter}, nil)
			interrupter.Subscribe(dispatcher)

			// Passing scenario between failures keeps the count honest
			sched := scheduler.New([]*skuld.Scenario{
				failingScenario("f-1"),
				failingScenario("f-2"),
				passingScenario("p-1"),
				failingScenario("f-3"),
			}, nil, dispatcher)

			report, err := runner.New(dispatcher, runContext, nil, runner.Config{}).Run(context.Background(), sched)
			require.NoError(t, err)

			require.Equal(t, test.expectFailed, report.Failed)
			require.Equal(t, test.expectInterrupted, report.Interrupted)
			require.Equal(t, test.expectStopped, report.StoppedEarly)
			require.Equal(t, test.expectStopped, runContext.IsStopped())
		})
	}
}

func TestInterrupter_TriggerIsIdempotent(t *testing.T) {
	runContext := skuld.NewRunContext(1)
	dispatcher := bus.NewDispatcher()

	announced := 0
	dispatcher.Listen(events.KindInterruptRequested, func(ctx context.Context, event bus.Event) error {
		announced++
		return nil
	}, 0)

	interrupter := interrupt.New(runContext, dispatcher, interrupt.Policy{}, nil)
	interrupter.Trigger(context.Background(), "first")
	interrupter.Trigger(context.Background(), "second")

	require.Equal(t, 1, announced)
	require.Equal(t, "first", runContext.StopReason())
}

func TestInterrupter_WatchSignal(t *testing.T) {
	runContext := skuld.NewRunContext(1)
	interrupter := interrupt.New(runContext, bus.NewDispatcher(), interrupt.Policy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer close(done)

	interrupter.WatchSignal(ctx, done)
	require.False(t, runContext.IsStopped())

	cancel()
	require.Eventually(t, runContext.IsStopped, time.Second, time.Millisecond)
	require.Equal(t, "external signal", runContext.StopReason())
}
