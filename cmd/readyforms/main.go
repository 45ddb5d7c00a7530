// Package main is the entry point for the ReadyForms API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal: its job is to read configuration,
// create the logger and hand over to internal/server. All actual logic
// lives in imported packages (internal/server, internal/service, ...).
//
// COMMANDS:
// The binary is a small cobra CLI so that operational tasks share the same
// configuration as the server:
//
//	readyforms serve                    run the HTTP API (default)
//	readyforms migrate                  apply database migrations and exit
//	readyforms promote --email a@b.com  grant admin rights to an account
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
