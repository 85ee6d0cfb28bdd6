// Package orderer provides strategies that turn the discovered
// scenario set into an execution order. Ordering is pure: the input
// slice is never mutated.
package orderer

import (
	"fmt"
	"math/rand"

	"github.com/sre-norns/skuld/pkg/skuld"
)

// Orderer produces the execution order for a set of scenarios.
type Orderer interface {
	Order(scenarios []*skuld.Scenario) []*skuld.Scenario
}

// Stable preserves discovery order. The default: failures stay
// reproducible run-to-run.
type Stable struct{}

func (Stable) Order(scenarios []*skuld.Scenario) []*skuld.Scenario {
	ordered := make([]*skuld.Scenario, len(scenarios))
	copy(ordered, scenarios)
	return ordered
}

// Reversed runs scenarios in reverse discovery order, useful for
// flushing out order-dependent test pollution.
type Reversed struct{}

func (Reversed) Order(scenarios []*skuld.Scenario) []*skuld.Scenario {
	ordered := make([]*skuld.Scenario, len(scenarios))
	for i, scenario := range scenarios {
		ordered[len(scenarios)-1-i] = scenario
	}
	return ordered
}

// Random shuffles scenarios with a seeded Fisher-Yates: the same seed
// yields the same order across calls and process restarts, so a
// randomized run can be reproduced by replaying its recorded seed.
type Random struct {
	Seed int64
}

func (o Random) Order(scenarios []*skuld.Scenario) []*skuld.Scenario {
	ordered := make([]*skuld.Scenario, len(scenarios))
	copy(ordered, scenarios)

	rnd := rand.New(rand.NewSource(o.Seed))
	rnd.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})

	return ordered
}

// New returns the orderer selected by name: "stable", "reversed" or
// "random". The seed only affects "random".
func New(name string, seed int64) (Orderer, error) {
	switch name {
	case "", "stable":
		return Stable{}, nil
	case "reversed":
		return Reversed{}, nil
	case "random":
		return Random{Seed: seed}, nil
	}

	return nil, fmt.Errorf("unknown orderer strategy %q", name)
}
