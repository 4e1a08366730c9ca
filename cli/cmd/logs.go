package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/progress"
	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/deploy"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
)

// LogsCommand returns the logs command.
func LogsCommand() *cli.Command {
	return &cli.Command{
		Name:      "logs",
		Usage:     "Show build logs (default: the last deployment)",
		ArgsUsage: "[build-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "Stream new lines until the build finishes",
			},
			FormatFlag,
			NoColorFlag,
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop following after this long (default 30m)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval (default 2.5s)",
			},
		},
		Action: logsAction,
	}
}

func logsAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	j, err := s.journal()
	if err != nil {
		return exitWithError(err)
	}
	buildID, err := s.buildID(c, j)
	if err != nil {
		return exitWithError(err)
	}
	m := metrics.NewCollector(s.project)
	api, err := s.client(m)
	if err != nil {
		return exitWithError(err)
	}

	if c.Bool("follow") {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		printer := progress.New(os.Stdout, progress.Options{NoColor: c.Bool("no-color")})
		resp, err := track.New(api, printer, s.trackingConfig(c, m)).Follow(ctx, buildID)
		switch {
		case err == nil:
			printer.StatusChanged(&types.BuildRecord{BuildID: buildID, Status: resp.Status}, "")
			return nil
		case errors.Is(err, track.ErrTrackingStopped):
			return nil
		default:
			return exitWithError(deploy.TrackingError(err))
		}
	}

	resp, err := api.GetLogs(c.Context, buildID)
	if err != nil {
		return exitWithAPIError(apierr.ContextDeployment, err)
	}
	if !c.IsSet("format") {
		for _, line := range resp.Logs {
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
