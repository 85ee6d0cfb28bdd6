package manifest

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sre-norns/skuld/pkg/skuld"
	"github.com/sre-norns/skuld/pkg/steps"
)

const KindScenario Kind = "scenario"

func init() {
	if err := RegisterKind(KindScenario, &ScenarioSpec{}); err != nil {
		panic(err)
	}
}

// StepManifest is a single step entry in a scenario document. The step
// body is dispatched on its kind through the steps registry.
// Marshaling is spelled out because the embedded manifest's custom
// codec would otherwise be promoted and swallow Name and Phase.
type StepManifest struct {
	Name  string          `json:"name,omitempty" yaml:"name,omitempty"`
	Phase skuld.StepPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	steps.Manifest `json:",inline" yaml:",inline"`
}

func (s StepManifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Name  string          `json:"name,omitempty"`
		Phase skuld.StepPhase `json:"phase,omitempty"`
		Kind  steps.Kind      `json:"kind,omitempty"`
		Spec  any             `json:"spec,omitempty"`
	}{
		Name:  s.Name,
		Phase: s.Phase,
		Kind:  s.Manifest.Kind,
		Spec:  s.Manifest.Spec,
	})
}

func (s *StepManifest) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Name  string          `json:"name,omitempty"`
		Phase skuld.StepPhase `json:"phase,omitempty"`
	}{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	s.Name = aux.Name
	s.Phase = aux.Phase
	return s.Manifest.UnmarshalJSON(data)
}

func (s StepManifest) MarshalYAML() (interface{}, error) {
	return struct {
		Name  string          `yaml:"name,omitempty"`
		Phase skuld.StepPhase `yaml:"phase,omitempty"`
		Kind  steps.Kind      `yaml:"kind,omitempty"`
		Spec  any             `yaml:"spec,omitempty"`
	}{
		Name:  s.Name,
		Phase: s.Phase,
		Kind:  s.Manifest.Kind,
		Spec:  s.Manifest.Spec,
	}, nil
}

func (s *StepManifest) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		Name  string          `yaml:"name"`
		Phase skuld.StepPhase `yaml:"phase"`
	}{}
	if err := n.Decode(&aux); err != nil {
		return err
	}

	s.Name = aux.Name
	s.Phase = aux.Phase
	return s.Manifest.UnmarshalYAML(n)
}

// ScenarioSpec is the spec body of a scenario manifest.
type ScenarioSpec struct {
	// Skipped marks the scenario to be scheduled but never executed
	Skipped    bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	SkipReason string `json:"skipReason,omitempty" yaml:"skipReason,omitempty"`

	// RunOnInterrupt lets the scenario execute even after a run has been
	// asked to stop. Intended for teardown-style suites.
	RunOnInterrupt bool `json:"runOnInterrupt,omitempty" yaml:"runOnInterrupt,omitempty"`

	Steps []StepManifest `json:"steps" yaml:"steps"`

	// Params expands the scenario into one variant per entry, with the
	// entry's values exposed to steps as template parameters.
	Params []skuld.Labels `json:"params,omitempty" yaml:"params,omitempty"`
}

func templateID(source, name string) string {
	return fmt.Sprintf("%v::%v", source, name)
}

func uniqueID(source, name string, index int) string {
	return fmt.Sprintf("%v::%v#%v", source, name, index)
}

// BuildScenarios converts a scenario manifest into runnable scenarios,
// one per params entry, or a single un-templated scenario when no
// params are given.
func BuildScenarios(m ResourceManifest, source string) ([]*skuld.Scenario, error) {
	if m.Kind != KindScenario {
		return nil, fmt.Errorf("unexpected manifest kind %q, expected %q", m.Kind, KindScenario)
	}

	spec, ok := m.Spec.(*ScenarioSpec)
	if !ok {
		return nil, fmt.Errorf("unexpected spec type %T for kind %q", m.Spec, m.Kind)
	}

	modelSteps := make([]skuld.Step, 0, len(spec.Steps))
	for i, stepManifest := range spec.Steps {
		fn, err := stepManifest.Resolve()
		if err != nil {
			return nil, fmt.Errorf("step %d of scenario %q: %w", i, m.Metadata.Name, err)
		}

		name := stepManifest.Name
		if name == "" {
			name = fmt.Sprintf("%v-%d", stepManifest.Manifest.Kind, i)
		}

		phase := stepManifest.Phase
		if phase == "" {
			phase = skuld.PhaseAction
		}

		modelSteps = append(modelSteps, skuld.Step{
			Name:  name,
			Phase: phase,
			Fn:    fn,
		})
	}

	newScenario := func(id string, index, total int, params skuld.Labels) *skuld.Scenario {
		scenario := &skuld.Scenario{
			UniqueID:       id,
			TemplateID:     templateID(source, m.Metadata.Name),
			TemplateIndex:  index,
			TemplateTotal:  total,
			Name:           m.Metadata.Name,
			Source:         source,
			Labels:         m.Metadata.Labels,
			Params:         params,
			Steps:          modelSteps,
			RunOnInterrupt: spec.RunOnInterrupt,
		}
		if spec.Skipped {
			scenario.Skip(spec.SkipReason)
		}

		return scenario
	}

	if len(spec.Params) == 0 {
		return []*skuld.Scenario{
			newScenario(templateID(source, m.Metadata.Name), 0, 0, nil),
		}, nil
	}

	result := make([]*skuld.Scenario, 0, len(spec.Params))
	for i, p := range spec.Params {
		result = append(result, newScenario(uniqueID(source, m.Metadata.Name, i), i, len(spec.Params), p))
	}

	return result, nil
}
