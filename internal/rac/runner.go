// Package rac wraps the 1C remote administration console: process execution,
// output decoding, and the block-text record format it prints.
package rac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// DefaultEncoding is the console's native code page.
const DefaultEncoding = "cp866"

// Runner executes the console with the given arguments and returns decoded stdout.
type Runner interface {
	Run(ctx context.Context, args []string) (string, error)
}

// LocalRunner runs the console executable on the local machine.
type LocalRunner struct {
	path     string
	timeout  time.Duration
	codepage *charmap.Charmap
}

// NewLocalRunner creates a runner for the executable at path. A zero timeout
// disables the per-call deadline. Unknown encodings fall back to raw bytes.
func NewLocalRunner(path string, timeout time.Duration, encoding string) *LocalRunner {
	return &LocalRunner{
		path:     path,
		timeout:  timeout,
		codepage: lookupCodepage(encoding),
	}
}

// Path returns the executable path.
func (r *LocalRunner) Path() string {
	return r.path
}

// Run executes the console once. Stdout and stderr are captured separately;
// on failure the combined diagnostic text is attached to the returned error.
func (r *LocalRunner) Run(ctx context.Context, args []string) (string, error) {
	if _, err := os.Stat(r.path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrConsoleNotFound, r.path)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, r.path, args...)
	command.WaitDelay = time.Second

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	err := command.Run()
	stdout := r.decode(stdoutBuf.Bytes())
	if err == nil {
		return stdout, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %s", ErrTimeout, r.timeout, commandName(args))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("console %s interrupted: %w", commandName(args), ctxErr)
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else {
		return "", fmt.Errorf("failed to start console: %w", err)
	}

	diagnostic := strings.TrimSpace(r.decode(stderrBuf.Bytes()) + "\n" + stdout)
	return stdout, &CommandError{
		Args:     redactArgs(args),
		ExitCode: exitCode,
		Output:   diagnostic,
	}
}

func (r *LocalRunner) decode(raw []byte) string {
	if r.codepage == nil || len(raw) == 0 {
		return string(raw)
	}
	decoded, err := r.codepage.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func lookupCodepage(name string) *charmap.Charmap {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cp866", "ibm866", "866", "":
		return charmap.CodePage866
	case "cp1251", "windows-1251", "1251":
		return charmap.Windows1251
	default:
		// utf-8 and anything unrecognized are passed through untouched
		return nil
	}
}

// redactArgs hides credential values before args end up in errors and logs.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "--cluster-pwd=") || strings.HasPrefix(arg, "--infobase-pwd=") {
			key, _, _ := strings.Cut(arg, "=")
			out[i] = key + "=***"
			continue
		}
		out[i] = arg
	}
	return out
}
