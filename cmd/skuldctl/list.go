package main

import (
	"github.com/sre-norns/skuld/pkg/manifest"
	"github.com/sre-norns/skuld/pkg/skuld"

	_ "github.com/sre-norns/skuld/pkg/steps/http"
	_ "github.com/sre-norns/skuld/pkg/steps/shell"
)

type ListCmd struct {
	Paths []string `arg:"" name:"path" help:"Manifest files or directories to inspect" type:"path"`
}

type scenarioInfo struct {
	UniqueID string       `json:"uniqueId" yaml:"uniqueId"`
	Name     string       `json:"name" yaml:"name"`
	Source   string       `json:"source" yaml:"source"`
	Labels   skuld.Labels `json:"labels,omitempty" yaml:"labels,omitempty"`
	Steps    int          `json:"steps" yaml:"steps"`
	Skipped  bool         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func (c *ListCmd) Run(cfg *commandContext) error {
	var infos []scenarioInfo
	for _, path := range c.Paths {
		scenarios, err := manifest.LoadPath(path)
		if err != nil {
			return err
		}

		for _, scenario := range scenarios {
			infos = append(infos, scenarioInfo{
				UniqueID: scenario.UniqueID,
				Name:     scenario.Name,
				Source:   scenario.Source,
				Labels:   scenario.Labels,
				Steps:    len(scenario.Steps),
				Skipped:  scenario.IsSkipped(),
			})
		}
	}

	return cfg.OutputFormatter(infos)
}
