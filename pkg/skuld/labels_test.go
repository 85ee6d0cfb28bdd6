package skuld_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/skuld"
)

func TestLabelsInterface(t *testing.T) {
	require.Equal(t, "value", skuld.Labels{"key": "value"}.Get("key"))
	require.Equal(t, false, skuld.Labels{"key": "value"}.Has("key-2"))
	require.Equal(t, true, skuld.Labels{"key": "value"}.Has("key"))
}

func TestLabels_Merging(t *testing.T) {
	testCases := map[string]struct {
		given  []skuld.Labels
		expect skuld.Labels
	}{
		"nil": {
			given:  []skuld.Labels{},
			expect: skuld.Labels{},
		},
		"identity": {
			given: []skuld.Labels{
				{"key": "value"},
			},
			expect: skuld.Labels{"key": "value"},
		},
		"key-override": {
			given: []skuld.Labels{
				{"key-1": "value-1", "key-2": "value-2"},
				{"key-2": "value-Wooh"},
			},
			expect: skuld.Labels{
				"key-1": "value-1",
				"key-2": "value-Wooh",
			},
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(fmt.Sprintf("merging:%s", name), func(t *testing.T) {
			got := skuld.MergeLabels(test.given...)
			require.EqualValues(t, test.expect, got)
		})
	}
}

func TestLabelSelector_Matches(t *testing.T) {
	given := skuld.Labels{"suite": "smoke", "env": "staging"}

	testCases := map[string]struct {
		selector skuld.LabelSelector
		expect   bool
	}{
		"empty-selector-matches-all": {
			selector: skuld.LabelSelector{},
			expect:   true,
		},
		"match-labels-hit": {
			selector: skuld.LabelSelector{MatchLabels: skuld.Labels{"suite": "smoke"}},
			expect:   true,
		},
		"match-labels-miss": {
			selector: skuld.LabelSelector{MatchLabels: skuld.Labels{"suite": "regression"}},
			expect:   false,
		},
		"exists": {
			selector: skuld.LabelSelector{MatchSelector: []skuld.Selector{
				{Key: "env", Op: skuld.OpExists},
			}},
			expect: true,
		},
		"not-exists": {
			selector: skuld.LabelSelector{MatchSelector: []skuld.Selector{
				{Key: "flaky", Op: skuld.OpNotExists},
			}},
			expect: true,
		},
		"in-values": {
			selector: skuld.LabelSelector{MatchSelector: []skuld.Selector{
				{Key: "env", Op: skuld.OpIn, Values: []string{"dev", "staging"}},
			}},
			expect: true,
		},
		"not-in-values": {
			selector: skuld.LabelSelector{MatchSelector: []skuld.Selector{
				{Key: "env", Op: skuld.OpNotIn, Values: []string{"staging"}},
			}},
			expect: false,
		},
		"all-requirements-must-hold": {
			selector: skuld.LabelSelector{
				MatchLabels: skuld.Labels{"suite": "smoke"},
				MatchSelector: []skuld.Selector{
					{Key: "env", Op: skuld.OpIn, Values: []string{"production"}},
				},
			},
			expect: false,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			require.Equal(t, test.expect, test.selector.Matches(given))
		})
	}
}
