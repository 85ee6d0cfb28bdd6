package deferrer_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/deferrer"
)

func TestStack_DrainsInReverseOrder(t *testing.T) {
	stack := deferrer.NewStack()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		stack.Defer(func() error {
			order = append(order, name)
			return nil
		})
	}

	require.Equal(t, 3, stack.Len())
	require.Empty(t, stack.Drain())
	require.Equal(t, []string{"third", "second", "first"}, order)
	require.True(t, stack.IsDrained())
	require.Equal(t, 0, stack.Len())
}

func TestStack_FailuresNeverStopUnwinding(t *testing.T) {
	stack := deferrer.NewStack()

	var order []string
	stack.Defer(func() error {
		order = append(order, "first")
		return nil
	})
	stack.Defer(func() error {
		order = append(order, "second")
		return fmt.Errorf("teardown failed")
	})
	stack.Defer(func() error {
		order = append(order, "third")
		return fmt.Errorf("close failed")
	})

	errs := stack.Drain()
	require.Equal(t, []string{"third", "second", "first"}, order)
	require.Len(t, errs, 2)
	require.ErrorContains(t, errs[0], "close failed")
	require.ErrorContains(t, errs[1], "teardown failed")
}

func TestStack_NestedDefersDrainInSamePass(t *testing.T) {
	stack := deferrer.NewStack()

	var order []string
	stack.Defer(func() error {
		order = append(order, "outer")
		stack.Defer(func() error {
			order = append(order, "nested")
			return nil
		})
		return nil
	})

	require.Empty(t, stack.Drain())
	require.Equal(t, []string{"outer", "nested"}, order)
}

func TestStack_NilActionsIgnored(t *testing.T) {
	stack := deferrer.NewStack()
	stack.Defer(nil)
	require.Equal(t, 0, stack.Len())
	require.Empty(t, stack.Drain())
}

func TestStack_EmptyDrain(t *testing.T) {
	stack := deferrer.NewStack()
	require.False(t, stack.IsDrained())
	require.Empty(t, stack.Drain())
	require.True(t, stack.IsDrained())
}
