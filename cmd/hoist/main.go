// Package main provides the hoist CLI entrypoint.
//
// Usage:
//
//	hoist [global options] <command> [options]
//
// Exit codes:
//   - 0: deployed, submitted (--no-wait), or tracking stopped by interrupt
//   - 1: precondition, configuration or transport error
//   - 2: remote build failed or was cancelled
//   - 3: tracking timed out (the build may still finish)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/cli/cmd"
	"github.com/pithecene-io/hoist/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:                 "hoist",
		Usage:                "Package a web app, upload it, and follow its remote build",
		Version:              fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:                cmd.GlobalFlags(),
		EnableBashCompletion: true,
		ExitErrHandler:       exitErrHandler,
		Commands: []*cli.Command{
			cmd.DeployCommand(),
			cmd.StatusCommand(),
			cmd.LogsCommand(),
			cmd.CancelCommand(),
			cmd.HistoryCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler prints the error and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	msg, code := exitMessage(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitMessage returns what to print for err and the process exit code.
// cli.Exit codes pass through; anything else is a generic failure.
func exitMessage(err error) (string, int) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N" or empty
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return msg, code
	}
	return fmt.Sprintf("Error: %v", err), 1
}
