package cmd

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/progress"
	"github.com/pithecene-io/hoist/deploy"
)

// exitWithError converts err into a cli.Exit carrying the operator-facing
// message (with next steps) and the deployment exit code. Nil stays nil.
func exitWithError(err error) error {
	if err == nil {
		return nil
	}
	msg := "Error: " + strings.TrimPrefix(progress.ErrorDetail(err), "  ")
	return cli.Exit(msg, deploy.ExitCode(err))
}

// exitWithAPIError is exitWithError for a failed deployment API call; the
// raw transport error is rewritten for area first.
func exitWithAPIError(area apierr.Context, err error) error {
	return exitWithError(apierr.Contextualize(area, err))
}
