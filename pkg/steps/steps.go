// Package steps is the registrar of executable step kinds. Declarative
// scenario manifests name step kinds; modules register a prototype
// spec and a run function for each kind they implement, usually from
// an init func. The engine core never imports this package: it only
// sees the resolved skuld.Step values.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sre-norns/skuld/pkg/skuld"
)

// Kind identifies the type of behavior a step implements
type Kind string

var (
	ErrNilRunFunc     = fmt.Errorf("step run function is nil")
	ErrUnknownKind    = fmt.Errorf("unknown step kind")
	ErrUnexpectedSpec = fmt.Errorf("unexpected step spec type")
)

// RunFn executes a step spec of a registered kind
type RunFn func(ctx context.Context, spec any, execCtx *skuld.ExecutionContext) error

type Registration struct {
	// Function to execute a step of this kind
	RunFunc RunFn

	// Sem-version of the module that registered the kind
	Version string

	// Human readable one-liner for CLI listings
	Description string
}

type registration struct {
	Registration
	proto reflect.Type
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]registration{}
)

// RegisterKind registers a new step kind with its prototype spec.
// proto must be a pointer to the spec struct the kind decodes into.
func RegisterKind(kind Kind, proto any, info Registration) error {
	if info.RunFunc == nil {
		return ErrNilRunFunc
	}

	t := reflect.ValueOf(proto)
	if t.Kind() != reflect.Pointer || !t.CanInterface() {
		return fmt.Errorf("step kind %q: pointer to spec expected", kind)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = registration{
		Registration: info,
		proto:        t.Elem().Type(),
	}

	return nil
}

// UnregisterKind removes a previously registered kind.
func UnregisterKind(kind Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, kind)
}

// ListKinds returns a copy of all registered step kinds.
// Note: a copy to avoid accidental modification of registration info.
func ListKinds() map[Kind]Registration {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make(map[Kind]Registration, len(registry))
	for kind, info := range registry {
		result[kind] = info.Registration
	}
	return result
}

func instanceOf(kind Kind) (any, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	info, known := registry[kind]
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return reflect.New(info.proto).Interface(), nil
}

func findRunFunc(kind Kind) (RunFn, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	info, ok := registry[kind]
	return info.RunFunc, ok
}

// Manifest is the declarative form of one step: a kind plus a spec of
// that kind's registered type.
type Manifest struct {
	Kind Kind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Actual spec, of a 'kind' type
	Spec any `json:"-" yaml:"-"`
}

// Resolve binds the manifest to its registered run function, producing
// a step body the runner can invoke.
func (m Manifest) Resolve() (skuld.StepFn, error) {
	runFn, ok := findRunFunc(m.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}

	spec := m.Spec
	return func(ctx context.Context, execCtx *skuld.ExecutionContext) error {
		return runFn(ctx, spec, execCtx)
	}, nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Kind Kind `json:"kind,omitempty"`
		Spec any  `json:"spec,omitempty"` // needed to strip any json tags
	}{
		Kind: m.Kind,
		Spec: m.Spec,
	})
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Kind Kind            `json:"kind,omitempty"`
		Spec json.RawMessage `json:"spec,omitempty"`
	}{}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	m.Kind = aux.Kind
	if len(aux.Spec) == 0 {
		m.Spec = nil
		return nil
	}

	spec, err := instanceOf(aux.Kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(aux.Spec, spec); err != nil {
		return err
	}

	m.Spec = spec
	return nil
}

func (m Manifest) MarshalYAML() (interface{}, error) {
	return struct {
		Kind Kind `yaml:"kind,omitempty"`
		Spec any  `yaml:"spec,omitempty"`
	}{
		Kind: m.Kind,
		Spec: m.Spec,
	}, nil
}

func (m *Manifest) UnmarshalYAML(n *yaml.Node) error {
	type M Manifest
	type T struct {
		*M   `yaml:",inline"`
		Spec yaml.Node `yaml:"spec"`
	}

	obj := &T{M: (*M)(m)}
	if err := n.Decode(obj); err != nil {
		return err
	}

	spec, err := instanceOf(m.Kind)
	if err != nil {
		if len(obj.Spec.Content) == 0 {
			m.Spec = nil
			return nil
		}
		return err
	}

	if err := obj.Spec.Decode(spec); err != nil {
		return err
	}

	m.Spec = spec
	return nil
}
