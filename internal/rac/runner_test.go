package rac

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "rac")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestLocalRunner_MissingExecutable(t *testing.T) {
	runner := NewLocalRunner(filepath.Join(t.TempDir(), "missing"), time.Second, "")

	_, err := runner.Run(context.Background(), []string{"cluster", "list"})
	if !errors.Is(err, ErrConsoleNotFound) {
		t.Fatalf("expected ErrConsoleNotFound, got %v", err)
	}
	if IsConnectivityError(err) {
		t.Fatalf("missing executable must not count as a connectivity failure")
	}
}

func TestLocalRunner_PassesArgsAndDecodesCodepage(t *testing.T) {
	// \217\340\250 is "При" in CP866.
	path := writeScript(t, `printf 'args : %s\n' "$*"; printf 'name : \217\340\250\n'`)
	runner := NewLocalRunner(path, 5*time.Second, "cp866")

	out, err := runner.Run(context.Background(), []string{"cluster", "list", "srv:1545"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	records := Decode(out)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(records), out)
	}
	if records[0]["args"] != "cluster list srv:1545" {
		t.Fatalf("unexpected args: %q", records[0]["args"])
	}
	if records[0]["name"] != "При" {
		t.Fatalf("expected cp866 decoding, got %q", records[0]["name"])
	}
}

func TestLocalRunner_UTF8Passthrough(t *testing.T) {
	path := writeScript(t, `printf 'name : Бух\n'`)
	runner := NewLocalRunner(path, 5*time.Second, "utf-8")

	out, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := Decode(out)[0]["name"]; got != "Бух" {
		t.Fatalf("expected raw passthrough, got %q", got)
	}
}

func TestLocalRunner_NonZeroExitIsFailure(t *testing.T) {
	path := writeScript(t, `printf 'cluster : abc\n'; printf 'Connection refused\n' >&2; exit 3`)
	runner := NewLocalRunner(path, 5*time.Second, "")

	_, err := runner.Run(context.Background(), []string{"cluster", "list"})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", cmdErr.ExitCode)
	}
	if !IsConnectivityError(err) {
		t.Fatalf("expected connectivity error for %q", cmdErr.Output)
	}
}

func TestLocalRunner_NonConnectivityFailure(t *testing.T) {
	path := writeScript(t, `printf 'Infobase not found\n' >&2; exit 1`)
	runner := NewLocalRunner(path, 5*time.Second, "")

	_, err := runner.Run(context.Background(), []string{"session", "terminate"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsConnectivityError(err) {
		t.Fatalf("did not expect connectivity error: %v", err)
	}
}

func TestLocalRunner_Timeout(t *testing.T) {
	path := writeScript(t, `exec sleep 5`)
	runner := NewLocalRunner(path, 100*time.Millisecond, "")

	start := time.Now()
	_, err := runner.Run(context.Background(), []string{"session", "list"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !IsConnectivityError(err) {
		t.Fatal("timeouts must count as connectivity failures")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout took too long: %s", time.Since(start))
	}
}

func TestCommandErrorRedactsPassword(t *testing.T) {
	path := writeScript(t, `exit 2`)
	runner := NewLocalRunner(path, 5*time.Second, "")

	_, err := runner.Run(context.Background(), []string{"session", "list", "--cluster-user=admin", "--cluster-pwd=secret"})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	for _, arg := range cmdErr.Args {
		if arg == "--cluster-pwd=secret" {
			t.Fatalf("password leaked into error args: %v", cmdErr.Args)
		}
	}
	if !cmdErr.Connectivity() {
		t.Fatal("failure without diagnostic should be treated as unreachable")
	}
}
