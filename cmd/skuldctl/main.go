package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"

	"github.com/sre-norns/skuld/pkg/grace"
)

type commandContext struct {
	Context context.Context
	Logger  log.Logger

	OutputFormatter formatter

	// ExitCode carries the run verdict out of command handlers, so
	// deferred cleanup still executes before the process exits
	ExitCode int
}

type outputFormat string

func (f outputFormat) AfterApply(cfg *commandContext) (err error) {
	cfg.OutputFormatter, err = getFormatter(f)
	return err
}

var appCli struct {
	Verbose bool `short:"v" help:"Enable verbose output"`
	NoColor bool `help:"Disable colored terminal output"`

	Format outputFormat `enum:"yaml,yml,json" help:"Data output format" default:"yml"`

	StateFile string `help:"Path of the run state database" default:".skuld.db" type:"path"`

	Run    RunCmd    `cmd:"" help:"Run scenarios from manifest files"`
	List   ListCmd   `cmd:"" help:"List scenarios discovered in manifest files"`
	Failed FailedCmd `cmd:"" help:"Show scenarios that failed in the previous run"`
}

const exitEngineError = 3

func main() {
	// Local overrides for things like default selectors and state paths
	_ = godotenv.Load()

	cfg := &commandContext{
		Context:         grace.SetupSignalHandler(),
		OutputFormatter: yamlFormatter,
	}
	appCtx := kong.Parse(&appCli,
		kong.Name("skuldctl"),
		kong.Description("Declarative scenario runner"),
		kong.Bind(cfg),
	)

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if !appCli.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	cfg.Logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if err := appCtx.Run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitEngineError)
	}

	os.Exit(cfg.ExitCode)
}
