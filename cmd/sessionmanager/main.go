// Package main is the entry point for the sessionmanager CLI.
// sessionmanager enforces per-client session quotas on a 1C:Enterprise
// server cluster through the rac administration console.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sdbsm/1CSessionManager-sub000/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if !exitErr.Printed {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
