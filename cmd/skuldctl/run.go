package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/grace"
	"github.com/sre-norns/skuld/pkg/interrupt"
	"github.com/sre-norns/skuld/pkg/manifest"
	"github.com/sre-norns/skuld/pkg/orderer"
	"github.com/sre-norns/skuld/pkg/partition"
	"github.com/sre-norns/skuld/pkg/plugins/lastfailed"
	"github.com/sre-norns/skuld/pkg/plugins/metrics"
	"github.com/sre-norns/skuld/pkg/plugins/repeater"
	"github.com/sre-norns/skuld/pkg/plugins/reporter"
	"github.com/sre-norns/skuld/pkg/plugins/skipper"
	"github.com/sre-norns/skuld/pkg/runner"
	"github.com/sre-norns/skuld/pkg/scheduler"
	"github.com/sre-norns/skuld/pkg/skuld"

	_ "github.com/sre-norns/skuld/pkg/steps/http"
	_ "github.com/sre-norns/skuld/pkg/steps/shell"
)

type RunCmd struct {
	Paths []string `arg:"" name:"path" help:"Manifest files or directories to load scenarios from" type:"path"`

	Order string `help:"Scenario execution order" enum:"stable,reversed,random" default:"stable"`
	Seed  int64  `help:"Global random seed; 0 derives one from the clock"`

	FailFastAfter int  `name:"fail-fast-after" help:"Stop scheduling new scenarios after this many failures; 0 disables"`
	Reruns        int  `help:"Rerun each failed scenario up to this many extra times to flag flaky ones"`
	DryRun        bool `help:"Schedule and report scenarios without executing their steps"`

	Selector     string `short:"l" name:"selector" help:"Run only scenarios matching this label selector"`
	SkipSelector string `name:"skip" help:"Mark scenarios matching this label selector as skipped"`
	LastFailed   bool   `name:"last-failed" help:"Run only scenarios that failed in the previous recorded run"`

	Only   []string `help:"Run only the scenario with this unique id (repeatable)"`
	Ignore []string `help:"Exclude scenarios whose unique id equals or starts with this value (repeatable)"`

	PartitionIndex int `name:"partition-index" help:"Run only this partition of the scenario set; -1 runs all partitions concurrently" default:"-1"`
	PartitionCount int `name:"partition-count" help:"Split the scenario set into this many partitions" default:"1"`

	MetricsOut string `name:"metrics-out" help:"Write run metrics in prometheus text format to this file" type:"path"`
}

func (c *RunCmd) Run(cfg *commandContext) error {
	scenarios, err := c.loadScenarios()
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	order, err := orderer.New(c.Order, seed)
	if err != nil {
		return err
	}

	runContext := skuld.NewRunContext(seed)
	logger := log.With(cfg.Logger, "run", runContext.RunID)

	report, err := c.execute(cfg, scenarios, runContext, order, logger)
	if err != nil {
		return err
	}

	cfg.ExitCode = report.ExitCode()
	return nil
}

func (c *RunCmd) loadScenarios() ([]*skuld.Scenario, error) {
	var scenarios []*skuld.Scenario
	for _, path := range c.Paths {
		loaded, err := manifest.LoadPath(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, loaded...)
	}

	if len(scenarios) == 0 {
		return nil, grace.RaiseError(
			"at least one scenario manifest",
			fmt.Sprintf("no scenarios in %v", strings.Join(c.Paths, ", ")),
			"point the run command at .yaml files or directories holding scenario manifests",
		)
	}

	return scenarios, nil
}

func (c *RunCmd) plugins(cfg *commandContext, logger log.Logger) ([]bus.Subscriber, *lastfailed.Plugin, error) {
	progress := reporter.New(os.Stdout, reporter.Config{
		Verbose: appCli.Verbose,
		NoColor: appCli.NoColor,
	})

	collector := metrics.New(logger)
	collector.OutputPath = c.MetricsOut

	subscribers := []bus.Subscriber{progress, collector}

	if c.SkipSelector != "" {
		selector, err := skipper.ParseSelector(c.SkipSelector)
		if err != nil {
			return nil, nil, err
		}
		subscribers = append(subscribers, skipper.New(selector, fmt.Sprintf("skipped: matches %q", c.SkipSelector)))
	}

	// Dry runs must not overwrite the recorded failure set
	var failures *lastfailed.Plugin
	if !c.DryRun {
		store, err := lastfailed.Open(appCli.StateFile)
		if err != nil {
			level.Warn(logger).Log("msg", "run state store unavailable, failures will not be recorded", "err", err)
		} else {
			failures = lastfailed.NewPlugin(store)
			subscribers = append(subscribers, failures)
		}
	}

	return subscribers, failures, nil
}

func (c *RunCmd) applySelection(cfg *commandContext, sched *scheduler.Scheduler, failures *lastfailed.Plugin) error {
	if c.Selector != "" {
		selector, err := skipper.ParseSelector(c.Selector)
		if err != nil {
			return err
		}
		if err := skipper.Select(sched, selector); err != nil {
			return err
		}
	}

	for _, id := range c.Only {
		if err := sched.Only(id); err != nil {
			return err
		}
	}
	for _, idOrPrefix := range c.Ignore {
		if err := sched.Ignore(idOrPrefix); err != nil {
			return err
		}
	}

	if c.LastFailed && failures != nil {
		if err := failures.RestrictToLastFailed(cfg.Context, sched); err != nil {
			return err
		}
	}

	return nil
}

func (c *RunCmd) execute(cfg *commandContext, scenarios []*skuld.Scenario,
	runContext *skuld.RunContext, order orderer.Orderer, logger log.Logger) (*skuld.Report, error) {

	subscribers, failures, err := c.plugins(cfg, logger)
	if err != nil {
		return nil, err
	}

	runnerConfig := runner.Config{DryRun: c.DryRun}
	policy := interrupt.Policy{FailFastAfter: c.FailFastAfter}

	if c.PartitionCount > 1 && c.PartitionIndex < 0 {
		return c.executePartitioned(cfg, scenarios, runContext, order, logger, subscribers, runnerConfig, policy)
	}

	slice := scenarios
	if c.PartitionIndex >= 0 {
		if slice, err = partition.Slice(scenarios, c.PartitionIndex, c.PartitionCount); err != nil {
			return nil, err
		}
	}

	dispatcher := bus.NewDispatcher().Register(subscribers...)

	sched := scheduler.New(slice, order, dispatcher)
	if err := c.applySelection(cfg, sched, failures); err != nil {
		return nil, err
	}

	if c.Reruns > 0 {
		dispatcher.Register(repeater.New(sched, c.Reruns))
	}

	interrupter := interrupt.New(runContext, dispatcher, policy, logger)
	interrupter.Subscribe(dispatcher)

	done := make(chan struct{})
	defer close(done)
	interrupter.WatchSignal(cfg.Context, done)

	// The run context, not context cancellation, stops the run: a
	// scenario in flight always executes to completion.
	return runner.New(dispatcher, runContext, logger, runnerConfig).Run(cfg.Context, sched)
}

func (c *RunCmd) executePartitioned(cfg *commandContext, scenarios []*skuld.Scenario,
	runContext *skuld.RunContext, order orderer.Orderer, logger log.Logger,
	subscribers []bus.Subscriber,
	runnerConfig runner.Config, policy interrupt.Policy) (*skuld.Report, error) {

	scenarios, err := c.preselect(scenarios)
	if err != nil {
		return nil, err
	}

	// One interrupter across all workers so the failure threshold is
	// global; its announcements go to a dispatcher the shared
	// subscribers also listen on.
	announce := bus.NewDispatcher().Register(subscribers...)
	interrupter := interrupt.New(runContext, announce, policy, logger)

	done := make(chan struct{})
	defer close(done)
	interrupter.WatchSignal(cfg.Context, done)

	report, err := partition.Run(cfg.Context, scenarios, c.PartitionCount, runContext, order, logger, runnerConfig,
		func(worker int, d *bus.Dispatcher) {
			d.Register(subscribers...)
			interrupter.Subscribe(d)
		})
	if err != nil {
		return nil, err
	}

	// Workers announce their partial reports; the merged verdict gets
	// one more announcement of its own.
	if err := announce.Fire(cfg.Context, events.RunFinished{Report: report}); err != nil {
		level.Warn(logger).Log("msg", "merged report handler failed", "err", err)
	}

	return report, nil
}

// preselect narrows the scenario set before it is partitioned, since
// partitioned schedulers are created per worker.
func (c *RunCmd) preselect(scenarios []*skuld.Scenario) ([]*skuld.Scenario, error) {
	keep := func(*skuld.Scenario) bool { return true }

	if c.Selector != "" {
		selector, err := skipper.ParseSelector(c.Selector)
		if err != nil {
			return nil, err
		}
		keep = func(scenario *skuld.Scenario) bool { return selector.Matches(scenario.Labels) }
	}

	if c.LastFailed {
		return nil, fmt.Errorf("--last-failed cannot be combined with concurrent partitions; pass --partition-index to run one partition")
	}

	selected := make([]*skuld.Scenario, 0, len(scenarios))
	for _, scenario := range scenarios {
		if !keep(scenario) {
			continue
		}
		if c.ignored(scenario.UniqueID) {
			continue
		}
		if len(c.Only) > 0 && !c.onlyListed(scenario.UniqueID) {
			continue
		}
		selected = append(selected, scenario)
	}

	return selected, nil
}

func (c *RunCmd) ignored(uniqueID string) bool {
	for _, idOrPrefix := range c.Ignore {
		if uniqueID == idOrPrefix || strings.HasPrefix(uniqueID, idOrPrefix) {
			return true
		}
	}
	return false
}

func (c *RunCmd) onlyListed(uniqueID string) bool {
	for _, id := range c.Only {
		if uniqueID == id {
			return true
		}
	}
	return false
}
