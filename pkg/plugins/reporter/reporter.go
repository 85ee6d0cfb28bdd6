// Package reporter renders run progress and the final summary to a
// terminal. It is a read-only subscriber: handlers never mutate
// scenarios or results.
package reporter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/skuld"
)

// Observers run after mutating plugins so they see final state
const observerPriority = 100

const timePrecision = time.Millisecond

type Config struct {
	// Verbose prints per-step outcomes, not just per-scenario lines
	Verbose bool

	NoColor bool
}

type Reporter struct {
	out    io.Writer
	config Config

	mu sync.Mutex
}

func New(out io.Writer, config Config) *Reporter {
	return &Reporter{
		out:    out,
		config: config,
	}
}

func (r *Reporter) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindRunStarted, r.onRunStarted, observerPriority).
		Listen(events.KindStepPassed, r.onStepDone, observerPriority).
		Listen(events.KindStepFailed, r.onStepDone, observerPriority).
		Listen(events.KindScenarioPassed, r.onScenarioDone, observerPriority).
		Listen(events.KindScenarioFailed, r.onScenarioDone, observerPriority).
		Listen(events.KindScenarioSkipped, r.onScenarioDone, observerPriority).
		Listen(events.KindScenarioInterrupt, r.onScenarioDone, observerPriority).
		Listen(events.KindInterruptRequested, r.onInterrupt, observerPriority).
		Listen(events.KindRunFinished, r.onRunFinished, observerPriority)
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *Reporter) colorize(colors text.Colors, value string) string {
	if r.config.NoColor {
		return value
	}
	return colors.Sprint(value)
}

func (r *Reporter) statusText(status skuld.Status) string {
	switch status {
	case skuld.StatusPassed:
		return r.colorize(text.Colors{text.FgGreen}, string(status))
	case skuld.StatusFailed:
		return r.colorize(text.Colors{text.FgRed, text.Bold}, string(status))
	case skuld.StatusSkipped:
		return r.colorize(text.Colors{text.FgYellow}, string(status))
	case skuld.StatusInterrupted:
		return r.colorize(text.Colors{text.FgMagenta}, string(status))
	default:
		return string(status)
	}
}

func (r *Reporter) onRunStarted(_ context.Context, event bus.Event) error {
	e, ok := event.(events.RunStarted)
	if !ok {
		return nil
	}

	r.printf("run %v: %d scenario(s) scheduled, seed %d\n", e.RunID, len(e.Scenarios), e.Seed)
	return nil
}

func (r *Reporter) onStepDone(_ context.Context, event bus.Event) error {
	if !r.config.Verbose {
		return nil
	}

	switch e := event.(type) {
	case events.StepPassed:
		r.printf("    %v %v (%v)\n", r.statusText(skuld.StatusPassed), e.StepResult.Name, e.StepResult.Elapsed().Round(timePrecision))
	case events.StepFailed:
		r.printf("    %v %v (%v): %v\n", r.statusText(skuld.StatusFailed), e.StepResult.Name, e.StepResult.Elapsed().Round(timePrecision), e.StepResult.Err)
	}
	return nil
}

func (r *Reporter) onScenarioDone(_ context.Context, event bus.Event) error {
	var result *skuld.ScenarioResult
	switch e := event.(type) {
	case events.ScenarioPassed:
		result = e.Result
	case events.ScenarioFailed:
		result = e.Result
	case events.ScenarioSkipped:
		result = e.Result
	case events.ScenarioInterrupted:
		result = e.Result
	default:
		return nil
	}

	name := result.Scenario.Name
	if result.Scenario.IsTemplated() {
		name = fmt.Sprintf("%v [%d/%d]", name, result.Scenario.TemplateIndex+1, result.Scenario.TemplateTotal)
	}

	switch {
	case result.IsFailed():
		r.printf("  %v %v (%v): %v\n", r.statusText(result.Status()), name, result.Elapsed().Round(timePrecision), result.Err)
		for _, cleanupErr := range result.CleanupErrs {
			r.printf("      cleanup: %v\n", cleanupErr)
		}
	case result.IsSkipped() && result.Scenario.SkipReason() != "":
		r.printf("  %v %v: %v\n", r.statusText(result.Status()), name, result.Scenario.SkipReason())
	case result.IsPassed():
		r.printf("  %v %v (%v)\n", r.statusText(result.Status()), name, result.Elapsed().Round(timePrecision))
	default:
		r.printf("  %v %v\n", r.statusText(result.Status()), name)
	}
	return nil
}

func (r *Reporter) onInterrupt(_ context.Context, event bus.Event) error {
	e, ok := event.(events.InterruptRequested)
	if !ok {
		return nil
	}

	r.printf("%v: %v\n", r.colorize(text.Colors{text.FgMagenta, text.Bold}, "interrupt requested"), e.Reason)
	return nil
}

func (r *Reporter) onRunFinished(_ context.Context, event bus.Event) error {
	e, ok := event.(events.RunFinished)
	if !ok || e.Report == nil {
		return nil
	}

	report := e.Report

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"scenario", "status", "variants"})
	for _, aggregate := range report.Results() {
		t.AppendRow(table.Row{aggregate.TemplateID, r.statusText(aggregate.Status()), len(aggregate.Results)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d total", report.Total),
		r.summaryCounts(report),
		"",
	})

	r.mu.Lock()
	t.Render()
	r.mu.Unlock()

	for _, line := range report.Summary() {
		r.printf("# %v\n", line)
	}

	verdict := skuld.StatusPassed
	switch {
	case report.Failed > 0:
		verdict = skuld.StatusFailed
	case report.StoppedEarly || report.Interrupted > 0:
		verdict = skuld.StatusInterrupted
	}
	r.printf("%v in %v\n", r.statusText(verdict), report.Elapsed().Round(timePrecision))
	return nil
}

func (r *Reporter) summaryCounts(report *skuld.Report) string {
	return fmt.Sprintf("%d passed / %d failed / %d skipped / %d interrupted",
		report.Passed, report.Failed, report.Skipped, report.Interrupted)
}
