package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sdbsm/1CSessionManager-sub000/internal/cluster"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
	"github.com/sdbsm/1CSessionManager-sub000/internal/redisstats"
	"github.com/sdbsm/1CSessionManager-sub000/internal/registry"
	"github.com/sdbsm/1CSessionManager-sub000/internal/settings"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		exitCode int
		resource string
	}{
		{
			name:     "client not found",
			err:      fmt.Errorf("client 'acme' not found: %w", db.ErrClientNotFound),
			code:     "ERR_NOT_FOUND",
			exitCode: 1,
			resource: "client",
		},
		{
			name:     "unknown setting",
			err:      fmt.Errorf("%w: monitor.nope", settings.ErrUnknownKey),
			code:     "ERR_NOT_FOUND",
			exitCode: 1,
			resource: "setting",
		},
		{
			name:     "duplicate client",
			err:      db.ErrClientAlreadyExists,
			code:     "ERR_EXISTS",
			exitCode: 1,
		},
		{
			name:     "cluster offline",
			err:      fmt.Errorf("resolve: %w", cluster.ErrClusterOffline),
			code:     "ERR_CLUSTER_OFFLINE",
			exitCode: 2,
		},
		{
			name:     "console connectivity",
			err:      &rac.CommandError{Args: []string{"cluster", "list"}, ExitCode: 255, Output: "Connection refused"},
			code:     "ERR_CLUSTER_OFFLINE",
			exitCode: 2,
		},
		{
			name:     "console failure",
			err:      &rac.CommandError{Args: []string{"session", "terminate"}, ExitCode: 1, Output: "Access denied to cluster"},
			code:     "ERR_CONSOLE",
			exitCode: 2,
		},
		{
			name:     "redis snapshot missing",
			err:      redisstats.ErrNoStats,
			code:     "ERR_NOT_FOUND",
			exitCode: 1,
		},
		{
			name:     "unsupported registry file",
			err:      fmt.Errorf("%w: clients.json", registry.ErrUnsupportedFormat),
			code:     "ERR_INVALID",
			exitCode: 1,
		},
		{
			name:     "invalid input",
			err:      errors.New(`invalid quota "x": must be a non-negative integer`),
			code:     "ERR_INVALID",
			exitCode: 1,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			code:     "ERR_UNKNOWN",
			exitCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _, details, exitCode := classifyError(tt.err)
			if code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
			if exitCode != tt.exitCode {
				t.Fatalf("exitCode = %d, want %d", exitCode, tt.exitCode)
			}
			if tt.resource != "" {
				if details == nil || details["resource"] != tt.resource {
					t.Fatalf("details = %v, want resource %q", details, tt.resource)
				}
			}
		})
	}
}

func TestBuildErrorEnvelopeIncludesHintAndID(t *testing.T) {
	err := fmt.Errorf("client 'acme' not found: %w", db.ErrClientNotFound)

	envelope := buildErrorEnvelope(err)
	if envelope.Error.Hint == "" {
		t.Fatal("expected hint for missing client")
	}
	if envelope.Error.Details["id"] != "acme" {
		t.Fatalf("details = %v, want id acme", envelope.Error.Details)
	}
}

func TestHandleCLIErrorKeepsPrintedError(t *testing.T) {
	original := &ExitError{Code: 3, Err: errors.New("already reported"), Printed: true}

	err := handleCLIError(original)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("expected exit code 3 to be preserved, got %v", err)
	}
}
