// Package metrics keeps a per-run prometheus registry of scenario and
// step outcomes and serializes it into a run artifact in the text
// exposition format.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/skuld"
)

const MetricsRelType = "metrics"

const observerPriority = 100

type Collector struct {
	registry *prometheus.Registry
	logger   log.Logger

	// OutputPath, when set, receives the serialized registry at the end
	// of the run
	OutputPath string

	scenarios *prometheus.CounterVec
	steps     *prometheus.CounterVec
	duration  prometheus.Histogram
}

func New(logger log.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skuld",
			Name:      "scenarios_total",
			Help:      "Scenarios finished, by terminal status",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skuld",
			Name:      "steps_total",
			Help:      "Steps finished, by terminal status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skuld",
			Name:      "scenario_duration_seconds",
			Help:      "Wall-clock duration of executed scenarios",
		}),
	}

	c.registry.MustRegister(c.scenarios, c.steps, c.duration)
	return c
}

// Registry exposes the underlying registry so callers can register
// run-specific collectors of their own.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindStepPassed, c.onStepDone, observerPriority).
		Listen(events.KindStepFailed, c.onStepDone, observerPriority).
		Listen(events.KindScenarioPassed, c.onScenarioDone, observerPriority).
		Listen(events.KindScenarioFailed, c.onScenarioDone, observerPriority).
		Listen(events.KindScenarioSkipped, c.onScenarioDone, observerPriority).
		Listen(events.KindScenarioInterrupt, c.onScenarioDone, observerPriority).
		Listen(events.KindCleanup, c.onCleanup, observerPriority)
}

func (c *Collector) onStepDone(_ context.Context, event bus.Event) error {
	switch e := event.(type) {
	case events.StepPassed:
		c.steps.WithLabelValues(string(e.StepResult.Status)).Inc()
	case events.StepFailed:
		c.steps.WithLabelValues(string(e.StepResult.Status)).Inc()
	}
	return nil
}

func (c *Collector) onScenarioDone(_ context.Context, event bus.Event) error {
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

	c.scenarios.WithLabelValues(string(result.Status())).Inc()
	if !result.StartedAt().IsZero() && !result.EndedAt().IsZero() {
		c.duration.Observe(result.Elapsed().Seconds())
	}
	return nil
}

func (c *Collector) onCleanup(_ context.Context, event bus.Event) error {
	if c.OutputPath == "" {
		return nil
	}

	artifact, err := c.ToArtifact()
	if err != nil {
		level.Warn(c.logger).Log("msg", "failed to serialize metrics registry", "err", err)
		return nil
	}

	if err := os.WriteFile(c.OutputPath, artifact.Content, 0644); err != nil {
		level.Warn(c.logger).Log("msg", "failed to write metrics artifact", "path", c.OutputPath, "err", err)
		return nil
	}

	if e, ok := event.(events.Cleanup); ok && e.Report != nil {
		e.Report.AddSummary(fmt.Sprintf("metrics: %v", c.OutputPath))
	}
	return nil
}

// ToArtifact serializes the registry in the prometheus text exposition
// format.
func (c *Collector) ToArtifact() (skuld.Artifact, error) {
	gatherer := prometheus.ToTransactionalGatherer(c.registry)
	mfs, done, err := gatherer.Gather()
	if err != nil {
		return skuld.Artifact{}, err
	}
	defer done()

	contentType := expfmt.NewFormat(expfmt.TypeTextPlain)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, contentType)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return skuld.Artifact{}, err
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return skuld.Artifact{}, err
		}
	}

	return skuld.Artifact{
		Rel:      MetricsRelType,
		MimeType: string(contentType),
		Content:  buf.Bytes(),
	}, nil
}
