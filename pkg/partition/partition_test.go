package partition_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/partition"
	"github.com/sre-norns/skuld/pkg/runner"
	"github.com/sre-norns/skuld/pkg/skuld"
)

func templated(template string, variants int) []*skuld.Scenario {
	result := make([]*skuld.Scenario, 0, variants)
	for i := 0; i < variants; i++ {
		result = append(result, &skuld.Scenario{
			UniqueID:      fmt.Sprintf("%s#%d", template, i),
			TemplateID:    template,
			TemplateIndex: i,
			TemplateTotal: variants,
		})
	}
	return result
}

func corpus() []*skuld.Scenario {
	var scenarios []*skuld.Scenario
	for i := 0; i < 10; i++ {
		scenarios = append(scenarios, templated(fmt.Sprintf("suite.yaml::case-%d", i), 1+i%3)...)
	}
	return scenarios
}

func TestSlice_DisjointAndComplete(t *testing.T) {
	scenarios := corpus()

	for _, count := range []int{1, 2, 3, 7} {
		count := count
		t.Run(fmt.Sprintf("count-%d", count), func(t *testing.T) {
			seen := map[string]int{}
			total := 0

			for index := 0; index < count; index++ {
				slice, err := partition.Slice(scenarios, index, count)
				require.NoError(t, err)

				for _, scenario := range slice {
					seen[scenario.UniqueID]++
					total++
				}
			}

			// Every scenario lands in exactly one partition
			require.Equal(t, len(scenarios), total)
			for _, scenario := range scenarios {
				require.Equal(t, 1, seen[scenario.UniqueID], "scenario %v", scenario.UniqueID)
			}
		})
	}
}

func TestSlice_TemplateNeverStraddlesPartitions(t *testing.T) {
	scenarios := corpus()

	templateHome := map[string]int{}
	for index := 0; index < 4; index++ {
		slice, err := partition.Slice(scenarios, index, 4)
		require.NoError(t, err)

		for _, scenario := range slice {
			if home, seen := templateHome[scenario.TemplateID]; seen {
				require.Equal(t, home, index, "template %v split across partitions", scenario.TemplateID)
			} else {
				templateHome[scenario.TemplateID] = index
			}
		}
	}
}

func TestSlice_Validation(t *testing.T) {
	scenarios := corpus()

	_, err := partition.Slice(scenarios, 0, 0)
	require.Error(t, err)

	_, err = partition.Slice(scenarios, -1, 2)
	require.Error(t, err)

	_, err = partition.Slice(scenarios, 2, 2)
	require.Error(t, err)
}

func TestRun_MergesPartitionReports(t *testing.T) {
	var mu sync.Mutex
	executed := map[string]bool{}

	var scenarios []*skuld.Scenario
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("suite.yaml::case-%d", i)
		fail := i%4 == 0
		scenarios = append(scenarios, &skuld.Scenario{
			UniqueID:   id,
			TemplateID: id,
			Steps: []skuld.Step{
				{Name: "work", Fn: func(ctx context.Context, execCtx *skuld.ExecutionContext) error {
					mu.Lock()
					executed[id] = true
					mu.Unlock()
					if fail {
						return fmt.Errorf("synthetic failure")
					}
					return nil
				}},
			},
		})
	}

	runContext := skuld.NewRunContext(7)
	report, err := partition.Run(context.Background(), scenarios, 3, runContext, nil, nil, runner.Config{},
		func(worker int, d *bus.Dispatcher) {})
	require.NoError(t, err)

	require.Len(t, executed, 12)
	require.Equal(t, 12, report.Total)
	require.Equal(t, 3, report.Failed)
	require.Equal(t, 9, report.Passed)
	require.Equal(t, 1, report.ExitCode())
}
