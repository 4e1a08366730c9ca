package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/journal"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/types"
)

// CancelCommand returns the cancel command.
func CancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a queued or running build (default: the last deployment)",
		ArgsUsage: "[build-id]",
		Flags:     []cli.Flag{FormatFlag, NoColorFlag},
		Action:    cancelAction,
	}
}

func cancelAction(c *cli.Context) error {
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
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	api, err := s.client(metrics.NewCollector(s.project))
	if err != nil {
		return exitWithError(err)
	}

	// A terminal status in the journal is final; anything else may be
	// stale, so the remote status decides.
	status, err := j.LastStatus(buildID)
	if err != nil {
		s.logger.Warn("failed to read journal", map[string]any{"error": err.Error()})
	}
	if !status.IsTerminal() {
		rec, err := api.GetStatus(c.Context, buildID)
		if err != nil {
			return exitWithAPIError(apierr.ContextDeployment, err)
		}
		status = rec.Status
	}
	if !status.IsCancellable() {
		return exitWithError(apierr.Validation(
			fmt.Sprintf("build %s is %s and can no longer be cancelled", buildID, status.Label()),
		))
	}

	resp, err := api.Cancel(c.Context, buildID)
	if err != nil {
		return exitWithAPIError(apierr.ContextDeployment, err)
	}
	if resp.Status == "" {
		resp.Status = types.StatusCancelled
	}
	if err := j.Append(journal.Entry{
		Kind:      journal.KindObserved,
		ProjectID: s.project,
		BuildID:   buildID,
		Status:    resp.Status,
	}); err != nil {
		s.logger.Warn("failed to update journal", map[string]any{"error": err.Error()})
	}
	return r.Render(resp)
}
