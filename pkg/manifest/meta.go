// Package manifest implements the declarative resource format the CLI
// driver consumes: typed, versioned documents with a kind registry so
// spec payloads decode into their registered Go types.
package manifest

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sre-norns/skuld/pkg/skuld"
)

// Kind identifies the resource type a manifest describes
type Kind string

var (
	registryMu   sync.RWMutex
	metaRegistry = map[Kind]reflect.Type{}
)

func RegisterKind(kind Kind, proto any) error {
	t := reflect.ValueOf(proto)
	if t.Kind() != reflect.Pointer || !t.CanInterface() {
		return fmt.Errorf("kind %q: pointer to spec type expected", kind)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	metaRegistry[kind] = t.Elem().Type()
	return nil
}

func InstanceOf(kind Kind) (any, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, known := metaRegistry[kind]
	if !known {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	return reflect.New(t).Interface(), nil
}

// TypeMeta describes the schema of a manifest document
type TypeMeta struct {
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Kind       Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

type ObjectMeta struct {
	// Name is a unique human-readable identifier of a resource
	Name string `json:"name" yaml:"name"`

	// Labels is a map of string keys and values that can be used to
	// organize and categorize (scope and select) resources.
	Labels skuld.Labels `json:"labels,omitempty" yaml:"labels,omitempty"`
}

type ResourceManifest struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta `json:"metadata" yaml:"metadata"`
	Spec     any        `json:"-" yaml:"-"`
}

func (m ResourceManifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		TypeMeta `json:",inline"`
		Metadata ObjectMeta `json:"metadata"`
		Spec     any        `json:"spec,omitempty"` // needed to strip any json tags
	}{
		TypeMeta: m.TypeMeta,
		Metadata: m.Metadata,
		Spec:     m.Spec,
	})
}

func (m *ResourceManifest) UnmarshalJSON(data []byte) error {
	aux := &struct {
		TypeMeta `json:",inline"`
		Metadata ObjectMeta      `json:"metadata"`
		Spec     json.RawMessage `json:"spec,omitempty"`
	}{
		TypeMeta: m.TypeMeta,
		Metadata: m.Metadata,
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	m.TypeMeta = aux.TypeMeta
	m.Metadata = aux.Metadata

	spec, err := InstanceOf(m.Kind)
	if err != nil {
		return err
	}

	if len(aux.Spec) == 0 { // No spec to parse
		m.Spec = spec
		return nil
	}

	if err := json.Unmarshal(aux.Spec, spec); err != nil {
		return err
	}

	m.Spec = spec
	return nil
}

func (m ResourceManifest) MarshalYAML() (interface{}, error) {
	return struct {
		TypeMeta `yaml:",inline"`
		Metadata ObjectMeta `yaml:"metadata"`
		Spec     any        `yaml:"spec,omitempty"` // needed to strip any json tags
	}{
		TypeMeta: m.TypeMeta,
		Metadata: m.Metadata,
		Spec:     m.Spec,
	}, nil
}

func (m *ResourceManifest) UnmarshalYAML(n *yaml.Node) error {
	type M ResourceManifest
	type T struct {
		*M   `yaml:",inline"`
		Spec yaml.Node `yaml:"spec"`
	}

	obj := &T{M: (*M)(m)}
	if err := n.Decode(obj); err != nil {
		return err
	}

	spec, err := InstanceOf(m.Kind)
	if err != nil {
		return err
	}

	if err := obj.Spec.Decode(spec); err != nil {
		return err
	}

	m.Spec = spec
	return nil
}
