package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
}

// VersionCommand returns the version command.
// It must not contact the deployment API.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:   types.Version,
			Commit:    commit,
			UserAgent: types.UserAgent,
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
}
