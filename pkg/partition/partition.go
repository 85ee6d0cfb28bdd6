// Package partition slices an ordered scenario set across independent
// workers. Partitions are disjoint and their union is the full set, so
// cross-worker aggregation is a plain merge keyed by template identity.
package partition

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/go-kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/orderer"
	"github.com/sre-norns/skuld/pkg/runner"
	"github.com/sre-norns/skuld/pkg/scheduler"
	"github.com/sre-norns/skuld/pkg/skuld"
)

// Index assigns a scenario to a partition by hashing its unique id.
// Parametrized variants of one template hash by template identity so a
// template never straddles two workers.
func Index(scenario *skuld.Scenario, count int) int {
	key := scenario.TemplateID
	if key == "" {
		key = scenario.UniqueID
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(count))
}

// Slice returns the scenarios belonging to partition index out of
// count, preserving their relative order.
func Slice(scenarios []*skuld.Scenario, index, count int) ([]*skuld.Scenario, error) {
	if count < 1 {
		return nil, fmt.Errorf("partition count must be >= 1, got %d", count)
	}
	if index < 0 || index >= count {
		return nil, fmt.Errorf("partition index %d out of range [0, %d)", index, count)
	}

	var slice []*skuld.Scenario
	for _, scenario := range scenarios {
		if Index(scenario, count) == index {
			slice = append(slice, scenario)
		}
	}

	return slice, nil
}

// Run executes the scenario set across count workers, each worker
// driving its own scheduler/runner pair over its disjoint partition,
// and merges the per-partition reports. The run context, and with it
// the stop flag, is shared: an interrupt raised by any worker stops
// all of them from starting new scenarios.
func Run(ctx context.Context, scenarios []*skuld.Scenario, count int,
	runContext *skuld.RunContext, order orderer.Orderer, logger log.Logger,
	config runner.Config, subscribe func(worker int, d *bus.Dispatcher)) (*skuld.Report, error) {

	if logger == nil {
		logger = log.NewNopLogger()
	}

	reports := make([]*skuld.Report, count)

	group, groupCtx := errgroup.WithContext(ctx)
	for worker := 0; worker < count; worker++ {
		worker := worker

		slice, err := Slice(scenarios, worker, count)
		if err != nil {
			return nil, err
		}

		group.Go(func() error {
			dispatcher := bus.NewDispatcher()
			if subscribe != nil {
				subscribe(worker, dispatcher)
			}

			sched := scheduler.New(slice, order, dispatcher)
			run := runner.New(dispatcher, runContext, log.With(logger, "worker", worker), config)

			report, err := run.Run(groupCtx, sched)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}

			reports[worker] = report
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := skuld.NewReport(runContext.RunID, runContext.Seed)
	for _, report := range reports {
		merged.Merge(report)
	}
	merged.StoppedEarly = runContext.IsStopped()

	return merged, nil
}
