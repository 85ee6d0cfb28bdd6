package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sre-norns/skuld/pkg/skuld"
	"github.com/sre-norns/skuld/pkg/steps"
)

const Kind = steps.Kind("shell")

// Spec describes a command invocation step. The command's combined
// output is attached to the scenario result as a log artifact.
type Spec struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir     string   `json:"dir,omitempty" yaml:"dir,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

var ErrNoCommand = fmt.Errorf("empty shell step command")

func init() {
	moduleVersion := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok {
		moduleVersion = strings.Trim(bi.Main.Version, "()")
	}

	_ = steps.RegisterKind(
		Kind,
		&Spec{},
		steps.Registration{
			RunFunc:     Run,
			Version:     moduleVersion,
			Description: "Runs a command and fails the step on non-zero exit",
		},
	)
}

func Run(ctx context.Context, stepSpec any, execCtx *skuld.ExecutionContext) error {
	spec, ok := stepSpec.(*Spec)
	if !ok {
		return fmt.Errorf("%w: got %q, expected %q",
			steps.ErrUnexpectedSpec, reflect.TypeOf(stepSpec), reflect.TypeOf(&Spec{}))
	}

	if spec.Command == "" {
		return ErrNoCommand
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()

	if output.Len() > 0 {
		execCtx.Attach(skuld.Artifact{
			Rel:      "log",
			MimeType: "text/plain",
			Content:  output.Bytes(),
		})
	}

	if runErr != nil {
		return fmt.Errorf("command %q failed: %w", spec.Command, runErr)
	}
	return nil
}
