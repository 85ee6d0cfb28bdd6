package bus_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/bus"
)

type testEvent struct {
	kind bus.Kind
}

func (e testEvent) Kind() bus.Kind { return e.kind }

func TestDispatcher_OrderingWithinKind(t *testing.T) {
	testCases := map[string]struct {
		priorities []int
		expect     []string
	}{
		"registration-order-on-equal-priority": {
			priorities: []int{0, 0, 0},
			expect:     []string{"h0", "h1", "h2"},
		},
		"ascending-priority": {
			priorities: []int{10, -10, 0},
			expect:     []string{"h1", "h2", "h0"},
		},
		"priority-ties-keep-registration-order": {
			priorities: []int{5, 0, 5, 0},
			expect:     []string{"h1", "h3", "h0", "h2"},
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			d := bus.NewDispatcher()

			var calls []string
			for i, priority := range test.priorities {
				id := fmt.Sprintf("h%d", i)
				d.Listen("tick", func(ctx context.Context, event bus.Event) error {
					calls = append(calls, id)
					return nil
				}, priority)
			}

			require.NoError(t, d.Fire(context.Background(), testEvent{kind: "tick"}))
			require.Equal(t, test.expect, calls)
		})
	}
}

func TestDispatcher_ErrorStopsDispatch(t *testing.T) {
	d := bus.NewDispatcher()

	var calls []string
	d.Listen("tick", func(ctx context.Context, event bus.Event) error {
		calls = append(calls, "first")
		return nil
	}, 0)
	d.Listen("tick", func(ctx context.Context, event bus.Event) error {
		calls = append(calls, "second")
		return fmt.Errorf("handler exploded")
	}, 0)
	d.Listen("tick", func(ctx context.Context, event bus.Event) error {
		calls = append(calls, "third")
		return nil
	}, 0)

	err := d.Fire(context.Background(), testEvent{kind: "tick"})
	require.Error(t, err)
	require.ErrorContains(t, err, "handler exploded")
	require.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcher_KindIsolation(t *testing.T) {
	d := bus.NewDispatcher()

	ticks := 0
	d.Listen("tick", func(ctx context.Context, event bus.Event) error {
		ticks++
		return nil
	}, 0)

	require.NoError(t, d.Fire(context.Background(), testEvent{kind: "tock"}))
	require.Equal(t, 0, ticks)
	require.True(t, d.HasListeners("tick"))
	require.False(t, d.HasListeners("tock"))
}

type countingSubscriber struct {
	seen int
}

func (s *countingSubscriber) Subscribe(d *bus.Dispatcher) {
	d.Listen("tick", func(ctx context.Context, event bus.Event) error {
		s.seen++
		return nil
	}, 0)
}

func TestDispatcher_Register(t *testing.T) {
	sub := &countingSubscriber{}
	d := bus.NewDispatcher().Register(sub)

	require.NoError(t, d.Fire(context.Background(), testEvent{kind: "tick"}))
	require.NoError(t, d.Fire(context.Background(), testEvent{kind: "tick"}))
	require.Equal(t, 2, sub.seen)
}
