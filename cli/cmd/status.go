package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/progress"
	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/cli/tui"
	"github.com/pithecene-io/hoist/deploy"
	"github.com/pithecene-io/hoist/journal"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/remote"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), &cli.BoolFlag{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Follow the build until it finishes",
	})
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a build (default: the last deployment)",
		ArgsUsage: "[build-id]",
		Flags:     append(flags, TrackingFlags()...),
		Action:    statusAction,
	}
}

func statusAction(c *cli.Context) error {
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

	if c.Bool("watch") {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchBuild(ctx, c, s, api, j, m, buildID)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rec, err := api.GetStatus(c.Context, buildID)
	if err != nil {
		return exitWithAPIError(apierr.ContextDeployment, err)
	}
	observe(s, j, rec)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectBuild, rec)
	}
	return r.Render(rec)
}

// watchBuild tracks buildID to a terminal status, with the live view
// when --tui is set and the plain printer otherwise.
func watchBuild(ctx context.Context, c *cli.Context, s *session, api *remote.Client, j *journal.Journal, m *metrics.Collector, buildID string) error {
	cfg := s.trackingConfig(c, m)
	printer := progress.New(os.Stdout, progress.Options{
		Interactive: isStdoutTTY(),
		NoColor:     c.Bool("no-color"),
	})
	started := time.Now()

	var (
		rec *types.BuildRecord
		err error
	)
	if c.Bool("tui") {
		rec, err = tui.RunWatch(ctx, buildID, func(ctx context.Context, r track.Renderer) (*types.BuildRecord, error) {
			return track.New(api, r, cfg).Track(ctx, buildID)
		})
	} else {
		rec, err = track.New(api, printer, cfg).Track(ctx, buildID)
	}
	if rec != nil {
		observe(s, j, rec)
	}
	err = deploy.TrackingError(err)

	printer.Summary(&deploy.Result{
		BuildID:  buildID,
		Record:   rec,
		Outcome:  deploy.TrackingOutcome(err),
		Err:      err,
		Duration: time.Since(started),
	})
	if code := deploy.ExitCode(err); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// observe records a freshly fetched status in the journal. Journal
// failures only cost the last-build shortcut, so they are logged.
func observe(s *session, j *journal.Journal, rec *types.BuildRecord) {
	project := rec.ProjectID
	if project == "" {
		project = s.project
	}
	err := j.Append(journal.Entry{
		Kind:      journal.KindObserved,
		ProjectID: project,
		BuildID:   rec.BuildID,
		Status:    rec.Status,
	})
	if err != nil {
		s.logger.Warn("failed to update journal", map[string]any{"error": err.Error()})
	}
}
