package skuld_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/skuld"
)

func newResult(t *testing.T, id string, marks ...func(*skuld.ScenarioResult) error) *skuld.ScenarioResult {
	t.Helper()

	result := skuld.NewScenarioResult(&skuld.Scenario{UniqueID: id, TemplateID: "tmpl"})
	for _, mark := range marks {
		require.NoError(t, mark(result))
	}
	return result
}

func running() func(*skuld.ScenarioResult) error {
	return func(r *skuld.ScenarioResult) error { return r.MarkRunning() }
}

func passed() func(*skuld.ScenarioResult) error {
	return func(r *skuld.ScenarioResult) error { return r.MarkPassed() }
}

func failed(cause error) func(*skuld.ScenarioResult) error {
	return func(r *skuld.ScenarioResult) error { return r.MarkFailed(cause) }
}

func skipped() func(*skuld.ScenarioResult) error {
	return func(r *skuld.ScenarioResult) error { return r.MarkSkipped() }
}

func interrupted() func(*skuld.ScenarioResult) error {
	return func(r *skuld.ScenarioResult) error { return r.MarkInterrupted() }
}

func TestScenarioResult_Transitions(t *testing.T) {
	testCases := map[string]struct {
		marks     []func(*skuld.ScenarioResult) error
		expectErr bool
		expect    skuld.Status
	}{
		"pending-to-running-to-passed": {
			marks:  []func(*skuld.ScenarioResult) error{running(), passed()},
			expect: skuld.StatusPassed,
		},
		"pending-to-running-to-failed": {
			marks:  []func(*skuld.ScenarioResult) error{running(), failed(fmt.Errorf("boom"))},
			expect: skuld.StatusFailed,
		},
		"pending-to-running-to-skipped": {
			marks:  []func(*skuld.ScenarioResult) error{running(), skipped()},
			expect: skuld.StatusSkipped,
		},
		"pending-straight-to-interrupted": {
			marks:  []func(*skuld.ScenarioResult) error{interrupted()},
			expect: skuld.StatusInterrupted,
		},
		"pending-cannot-pass-without-running": {
			marks:     []func(*skuld.ScenarioResult) error{passed()},
			expectErr: true,
		},
		"pending-cannot-fail-without-running": {
			marks:     []func(*skuld.ScenarioResult) error{failed(fmt.Errorf("boom"))},
			expectErr: true,
		},
		"passed-is-terminal": {
			marks:     []func(*skuld.ScenarioResult) error{running(), passed(), failed(fmt.Errorf("boom"))},
			expectErr: true,
		},
		"failed-is-terminal": {
			marks:     []func(*skuld.ScenarioResult) error{running(), failed(fmt.Errorf("boom")), passed()},
			expectErr: true,
		},
		"interrupted-is-terminal": {
			marks:     []func(*skuld.ScenarioResult) error{interrupted(), running()},
			expectErr: true,
		},
		"double-running": {
			marks:     []func(*skuld.ScenarioResult) error{running(), running()},
			expectErr: true,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			result := skuld.NewScenarioResult(&skuld.Scenario{UniqueID: "s-1"})

			var lastErr error
			for _, mark := range test.marks {
				if lastErr = mark(result); lastErr != nil {
					break
				}
			}

			if test.expectErr {
				require.Error(t, lastErr)
				require.ErrorIs(t, lastErr, skuld.ErrInvalidTransition)
			} else {
				require.NoError(t, lastErr)
				require.Equal(t, test.expect, result.Status())
			}
		})
	}
}

func TestScenarioResult_FailureCause(t *testing.T) {
	stepErr := fmt.Errorf("assertion failed")
	result := newResult(t, "s-1", running(), failed(stepErr))

	require.Same(t, stepErr, result.Err)

	cleanupErr := fmt.Errorf("cleanup failed")
	result.AddCleanupErr(cleanupErr)

	// Cleanup errors never displace the primary cause
	require.Same(t, stepErr, result.Err)
	require.Equal(t, []error{cleanupErr}, result.CleanupErrs)
}

func TestScenarioResult_CleanupErrBecomesPrimaryCause(t *testing.T) {
	result := newResult(t, "s-1", running())

	cleanupErr := fmt.Errorf("cleanup failed")
	result.AddCleanupErr(cleanupErr)
	require.Same(t, cleanupErr, result.Err)
}

func TestScenarioResult_Reporting(t *testing.T) {
	result := newResult(t, "s-1", running())

	// Non-terminal results cannot be reported
	require.Error(t, result.MarkReported())

	require.NoError(t, result.MarkPassed())
	require.NoError(t, result.MarkReported())
	require.True(t, result.IsReported())

	// Double-reporting is a programming error
	require.Error(t, result.MarkReported())
}

func TestAggregateResults(t *testing.T) {
	testCases := map[string]struct {
		marks  [][]func(*skuld.ScenarioResult) error
		expect skuld.Status
	}{
		"no-members": {
			marks:  nil,
			expect: skuld.StatusSkipped,
		},
		"single-passed": {
			marks:  [][]func(*skuld.ScenarioResult) error{{running(), passed()}},
			expect: skuld.StatusPassed,
		},
		"all-passed": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{running(), passed()},
				{running(), passed()},
			},
			expect: skuld.StatusPassed,
		},
		"any-failure-wins": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{running(), passed()},
				{running(), failed(fmt.Errorf("boom"))},
				{running(), passed()},
			},
			expect: skuld.StatusFailed,
		},
		"interrupted-beats-passed": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{running(), passed()},
				{interrupted()},
			},
			expect: skuld.StatusInterrupted,
		},
		"failed-beats-interrupted": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{interrupted()},
				{running(), failed(fmt.Errorf("boom"))},
			},
			expect: skuld.StatusFailed,
		},
		"passed-beats-skipped": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{running(), skipped()},
				{running(), passed()},
			},
			expect: skuld.StatusPassed,
		},
		"all-skipped": {
			marks: [][]func(*skuld.ScenarioResult) error{
				{running(), skipped()},
				{running(), skipped()},
			},
			expect: skuld.StatusSkipped,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			members := make([]*skuld.ScenarioResult, 0, len(test.marks))
			for i, marks := range test.marks {
				members = append(members, newResult(t, fmt.Sprintf("s-%d", i), marks...))
			}

			aggregate := skuld.AggregateResults("tmpl", members)
			require.Equal(t, test.expect, aggregate.Status())

			if len(members) > 0 {
				require.NotNil(t, aggregate.Primary)
				require.Equal(t, test.expect, aggregate.Primary.Status())
			}
		})
	}
}
