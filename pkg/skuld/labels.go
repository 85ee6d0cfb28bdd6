package skuld

// Labels is a set of key=value tags attached to a scenario.
// Same shape as "k8s.io/apimachinery/pkg/labels".Set
type Labels map[string]string

func (l Labels) Has(key string) bool {
	_, ok := l[key]
	return ok
}

func (l Labels) Get(key string) string {
	return l[key]
}

func MergeLabels(labels ...Labels) Labels {
	result := make(Labels)
	for _, l := range labels {
		for k, v := range l {
			result[k] = v
		}
	}

	return result
}

type SelectorOp string

const (
	OpIn        SelectorOp = "in"
	OpNotIn     SelectorOp = "notin"
	OpExists    SelectorOp = "exists"
	OpNotExists SelectorOp = "!"
)

type Selector struct {
	Key    string     `json:"key" yaml:"key"`
	Op     SelectorOp `json:"op" yaml:"op"`
	Values []string   `json:"values,omitempty" yaml:"values,omitempty"`
}

func (s Selector) Matches(labels Labels) bool {
	switch s.Op {
	case OpExists:
		return labels.Has(s.Key)
	case OpNotExists:
		return !labels.Has(s.Key)
	case OpIn:
		if !labels.Has(s.Key) {
			return false
		}
		value := labels.Get(s.Key)
		for _, v := range s.Values {
			if v == value {
				return true
			}
		}
		return false
	case OpNotIn:
		if !labels.Has(s.Key) {
			return true
		}
		value := labels.Get(s.Key)
		for _, v := range s.Values {
			if v == value {
				return false
			}
		}
		return true
	}

	return false
}

// LabelSelector holds label-based requirements used to select scenarios
type LabelSelector struct {
	MatchLabels Labels `json:"matchLabels,omitempty" yaml:"matchLabels,omitempty"`

	MatchSelector []Selector `json:"matchSelector,omitempty" yaml:"matchSelector,omitempty"`
}

// Matches returns true if the given label set satisfies every
// requirement of the selector. An empty selector matches everything.
func (ls LabelSelector) Matches(labels Labels) bool {
	for key, value := range ls.MatchLabels {
		if labels.Get(key) != value {
			return false
		}
	}

	for _, selector := range ls.MatchSelector {
		if !selector.Matches(labels) {
			return false
		}
	}

	return true
}
