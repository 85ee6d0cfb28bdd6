package main

import (
	"errors"
	"fmt"

	"github.com/sre-norns/skuld/pkg/plugins/lastfailed"
)

type FailedCmd struct {
}

func (c *FailedCmd) Run(cfg *commandContext) error {
	store, err := lastfailed.Open(appCli.StateFile)
	if err != nil {
		return err
	}

	failed, err := store.LastFailed(cfg.Context)
	if err != nil {
		if errors.Is(err, lastfailed.ErrNoPreviousRun) {
			fmt.Println("no runs recorded yet")
			return nil
		}
		return err
	}

	if len(failed) == 0 {
		fmt.Println("previous run had no failures")
		return nil
	}

	return cfg.OutputFormatter(failed)
}
