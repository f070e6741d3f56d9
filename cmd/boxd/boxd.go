package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/boxd/internal"
	"github.com/cruciblehq/boxd/internal/cli"
	"github.com/cruciblehq/boxd/internal/logging"
)

// The entry point for boxd.
//
// Initializes logging, displays startup information, and executes the root
// command. If any error occurs during execution, it exits with a non-zero
// code, which is the failing command's own code when a run step fails.
func main() {
	logging.Configure(os.Stderr, logging.Options{
		Quiet: internal.IsQuiet(),
		Debug: internal.IsDebug(),
	})

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("boxd is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(cli.ExitCode(err))
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
