package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sre-norns/skuld/pkg/skuld"
	"github.com/sre-norns/skuld/pkg/steps"
)

const Kind = steps.Kind("http")

// Spec describes an HTTP check: issue a request against a target and
// assert on the response.
type Spec struct {
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// ExpectStatus asserts the response status code; 0 accepts any 2xx
	ExpectStatus int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// ExpectBodyContains asserts a substring of the response body
	ExpectBodyContains string `json:"expectBodyContains,omitempty" yaml:"expectBodyContains,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

var ErrNoTarget = fmt.Errorf("empty http step target")

func init() {
	moduleVersion := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok {
		moduleVersion = strings.Trim(bi.Main.Version, "()")
	}

	// Ignore double registration error
	_ = steps.RegisterKind(
		Kind,
		&Spec{},
		steps.Registration{
			RunFunc:     Run,
			Version:     moduleVersion,
			Description: "Issues an HTTP request and asserts on the response",
		},
	)
}

func Run(ctx context.Context, stepSpec any, execCtx *skuld.ExecutionContext) error {
	spec, ok := stepSpec.(*Spec)
	if !ok {
		return fmt.Errorf("%w: got %q, expected %q",
			steps.ErrUnexpectedSpec, reflect.TypeOf(stepSpec), reflect.TypeOf(&Spec{}))
	}

	if spec.Target == "" {
		return ErrNoTarget
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.Target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %q: %w", spec.Target, err)
	}

	rsp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %q failed: %w", spec.Target, err)
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %q: %w", spec.Target, err)
	}

	if spec.ExpectStatus != 0 {
		if rsp.StatusCode != spec.ExpectStatus {
			return fmt.Errorf("%s %s: expected status %d, got %d",
				method, spec.Target, spec.ExpectStatus, rsp.StatusCode)
		}
	} else if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: expected 2xx status, got %d", method, spec.Target, rsp.StatusCode)
	}

	if spec.ExpectBodyContains != "" && !strings.Contains(string(body), spec.ExpectBodyContains) {
		return fmt.Errorf("%s %s: response body does not contain %q", method, spec.Target, spec.ExpectBodyContains)
	}

	execCtx.Attach(skuld.Artifact{
		Rel:      "http-response",
		MimeType: rsp.Header.Get("Content-Type"),
		Content:  body,
	})

	return nil
}
