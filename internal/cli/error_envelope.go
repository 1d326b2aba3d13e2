package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sdbsm/1CSessionManager-sub000/internal/cluster"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
	"github.com/sdbsm/1CSessionManager-sub000/internal/redisstats"
	"github.com/sdbsm/1CSessionManager-sub000/internal/registry"
	"github.com/sdbsm/1CSessionManager-sub000/internal/settings"
)

// ErrorEnvelope is the JSON/JSONL error response shape.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload carries structured error details.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ExitError carries an exit code and whether output was already printed.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func handleCLIError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Printed {
			return exitErr
		}
		if exitErr.Err != nil {
			err = exitErr.Err
		}
	}

	exitCode := exitCodeFromError(err)
	if exitErr != nil && exitErr.Code != 0 {
		exitCode = exitErr.Code
	}

	if IsJSONOutput() || IsJSONLOutput() {
		_ = WriteOutput(os.Stdout, buildErrorEnvelope(err))
	} else {
		fmt.Fprintln(os.Stderr, colorize("Error: ", styleError)+err.Error())
	}

	return &ExitError{
		Code:    exitCode,
		Err:     err,
		Printed: true,
	}
}

func buildErrorEnvelope(err error) ErrorEnvelope {
	code, message, hint, details, _ := classifyError(err)
	return ErrorEnvelope{
		Error: ErrorPayload{
			Code:    code,
			Message: message,
			Hint:    hint,
			Details: details,
		},
	}
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	_, _, _, _, code := classifyError(err)
	return code
}

// classifyError maps known sentinels first and falls back to message
// matching for errors from libraries.
func classifyError(err error) (code, message, hint string, details map[string]any, exitCode int) {
	exitCode = 1
	if err == nil {
		return "ERR_UNKNOWN", "", "", nil, exitCode
	}

	message = err.Error()

	var cmdErr *rac.CommandError
	switch {
	case errors.Is(err, db.ErrClientNotFound):
		return "ERR_NOT_FOUND", message, listHintForResource("client"), resourceDetails("client", message), exitCode
	case errors.Is(err, db.ErrSettingNotFound), errors.Is(err, settings.ErrUnknownKey):
		return "ERR_NOT_FOUND", message, listHintForResource("setting"), resourceDetails("setting", message), exitCode
	case errors.Is(err, redisstats.ErrNoStats):
		return "ERR_NOT_FOUND", message, "Check redis.addr and that the monitor mirrors statistics to Redis.", nil, exitCode
	case errors.Is(err, db.ErrNoStats):
		return "ERR_NOT_FOUND", message, "Start the monitor with `sessionmanager run` to collect statistics.", nil, exitCode
	case errors.Is(err, db.ErrClientAlreadyExists), errors.Is(err, db.ErrInfobaseAssigned):
		return "ERR_EXISTS", message, "", nil, exitCode
	case errors.Is(err, registry.ErrUnsupportedFormat):
		return "ERR_INVALID", message, "Use a .yaml, .yml or .toml file.", nil, exitCode
	case errors.Is(err, cluster.ErrClusterOffline), rac.IsConnectivityError(err):
		return "ERR_CLUSTER_OFFLINE", message, "Check console.host and that the administration server is running.", nil, 2
	case errors.Is(err, rac.ErrConsoleNotFound):
		return "ERR_CONSOLE", message, "Set console.path to the rac executable.", nil, 2
	case errors.As(err, &cmdErr):
		details = map[string]any{"exit_code": cmdErr.ExitCode}
		return "ERR_CONSOLE", message, "Check console.path and the cluster administrator credentials.", details, 2
	}

	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "not found"):
		code = "ERR_NOT_FOUND"
		if resource := inferResource(lower); resource != "" {
			details = resourceDetails(resource, message)
			hint = listHintForResource(resource)
		}
	case strings.Contains(lower, "already exists"):
		code = "ERR_EXISTS"
	case strings.Contains(lower, "unknown flag"):
		code = "ERR_INVALID_FLAG"
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "required") || strings.Contains(lower, "usage") || strings.Contains(lower, "must"):
		code = "ERR_INVALID"
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		code = "ERR_OPERATION_FAILED"
		exitCode = 2
	case strings.Contains(lower, "failed to") || strings.Contains(lower, "unable to"):
		code = "ERR_OPERATION_FAILED"
		exitCode = 2
	default:
		code = "ERR_UNKNOWN"
	}

	return code, message, hint, details, exitCode
}

func inferResource(lower string) string {
	switch {
	case strings.Contains(lower, "client"):
		return "client"
	case strings.Contains(lower, "setting"):
		return "setting"
	case strings.Contains(lower, "infobase"):
		return "infobase"
	}
	return ""
}

func resourceDetails(resource, message string) map[string]any {
	details := map[string]any{"resource": resource}
	if id := extractQuotedValue(message); id != "" {
		details["id"] = id
	}
	return details
}

func extractQuotedValue(message string) string {
	start := strings.Index(message, "'")
	if start == -1 {
		return ""
	}
	end := strings.Index(message[start+1:], "'")
	if end == -1 {
		return ""
	}
	return message[start+1 : start+1+end]
}

func listHintForResource(resource string) string {
	switch resource {
	case "client":
		return "Run `sessionmanager clients list` to see registered clients."
	case "setting":
		return "Run `sessionmanager settings get` to see supported settings."
	case "infobase":
		return "Run `sessionmanager check` to see the infobases of the cluster."
	default:
		return ""
	}
}
