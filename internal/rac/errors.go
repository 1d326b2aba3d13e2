package rac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConsoleNotFound means the console executable is missing locally; no process was spawned.
	ErrConsoleNotFound = errors.New("administration console executable not found")

	// ErrTimeout means the console process exceeded its deadline and was killed.
	ErrTimeout = errors.New("administration console timed out")
)

// connectivityMarkers are lower-cased diagnostic fragments the console prints
// when the administration server cannot be reached.
var connectivityMarkers = []string{
	"не удалось установить соединение",
	"не удается установить соединение",
	"сервер не обнаружен",
	"connection refused",
	"cannot connect",
	"could not connect",
	"unable to connect",
	"no connection could be made",
}

// CommandError represents a non-zero exit from the console.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("console %s: exit status %d", commandName(e.Args), e.ExitCode)
	if out := firstLine(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Connectivity reports whether the diagnostic text points at an unreachable server.
// A failure with no diagnostic at all is treated the same way.
func (e *CommandError) Connectivity() bool {
	text := strings.ToLower(e.Output)
	if strings.TrimSpace(text) == "" {
		return true
	}
	for _, marker := range connectivityMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// IsConnectivityError reports whether err means the cluster could not be
// reached, so any cached cluster identity must be dropped.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Connectivity()
	}
	return false
}

func commandName(args []string) string {
	parts := make([]string, 0, 2)
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") || len(parts) == 2 {
			break
		}
		parts = append(parts, arg)
	}
	if len(parts) == 0 {
		return "command"
	}
	return strings.Join(parts, " ")
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
