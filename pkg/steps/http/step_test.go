package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skuld/pkg/skuld"
	"github.com/sre-norns/skuld/pkg/steps"
	httpstep "github.com/sre-norns/skuld/pkg/steps/http"
)

func execContext(attach func(skuld.Artifact)) *skuld.ExecutionContext {
	if attach == nil {
		attach = func(skuld.Artifact) {}
	}
	return skuld.NewExecutionContext("test-run", 1, log.NewNopLogger(), func(skuld.Deferred) {}, attach)
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("service is healthy"))
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	server := testServer(t)

	testCases := map[string]struct {
		given       httpstep.Spec
		expectError bool
	}{
		"defaults-accept-2xx": {
			given: httpstep.Spec{Target: server.URL + "/health"},
		},
		"explicit-status-match": {
			given: httpstep.Spec{Target: server.URL + "/teapot", ExpectStatus: http.StatusTeapot},
		},
		"status-mismatch": {
			given:       httpstep.Spec{Target: server.URL + "/health", ExpectStatus: http.StatusNoContent},
			expectError: true,
		},
		"non-2xx-rejected-by-default": {
			given:       httpstep.Spec{Target: server.URL + "/teapot"},
			expectError: true,
		},
		"body-contains": {
			given: httpstep.Spec{Target: server.URL + "/health", ExpectBodyContains: "healthy"},
		},
		"body-does-not-contain": {
			given:       httpstep.Spec{Target: server.URL + "/health", ExpectBodyContains: "degraded"},
			expectError: true,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			err := httpstep.Run(context.Background(), &test.given, execContext(nil))
			if test.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRun_EmptyTarget(t *testing.T) {
	err := httpstep.Run(context.Background(), &httpstep.Spec{}, execContext(nil))
	require.ErrorIs(t, err, httpstep.ErrNoTarget)
}

func TestRun_RejectsForeignSpec(t *testing.T) {
	err := httpstep.Run(context.Background(), &struct{}{}, execContext(nil))
	require.ErrorIs(t, err, steps.ErrUnexpectedSpec)
}

func TestRun_AttachesResponseArtifact(t *testing.T) {
	server := testServer(t)

	var artifacts []skuld.Artifact
	execCtx := execContext(func(a skuld.Artifact) { artifacts = append(artifacts, a) })

	err := httpstep.Run(context.Background(), &httpstep.Spec{Target: server.URL + "/health"}, execCtx)
	require.NoError(t, err)

	require.Len(t, artifacts, 1)
	require.Equal(t, "http-response", artifacts[0].Rel)
	require.Equal(t, "text/plain", artifacts[0].MimeType)
	require.Equal(t, "service is healthy", string(artifacts[0].Content))
}
