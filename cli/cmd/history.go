package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/cli/tui"
	"github.com/pithecene-io/hoist/history"
)

// historyWarningThreshold is the number of rows above which --all warns.
const historyWarningThreshold = 100

// HistoryRow is the thin per-deployment view shown in table format.
type HistoryRow struct {
	BuildID  string    `json:"build_id"`
	Project  string    `json:"project"`
	Outcome  string    `json:"outcome"`
	Status   string    `json:"status"`
	Duration string    `json:"duration"`
	Finished time.Time `json:"finished"`
}

func newHistoryRows(recs []history.Record) []HistoryRow {
	rows := make([]HistoryRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, HistoryRow{
			BuildID:  rec.BuildID,
			Project:  rec.ProjectID,
			Outcome:  rec.Outcome,
			Status:   rec.Status,
			Duration: tui.FormatDuration(time.Duration(rec.DurationMs) * time.Millisecond),
			Finished: rec.FinishedAt,
		})
	}
	return rows
}

// HistoryCommand returns the history command.
// History reads the local or S3 deployment history; it never calls the API.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded deployments of the project",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of deployments to return",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "List every project and ignore --limit",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Show aggregated statistics instead of the list",
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") && !c.Bool("stats") {
		return cli.Exit("--tui is only supported with --stats for history", 1)
	}

	store, err := s.history(c.Context)
	if err != nil {
		return exitWithError(err)
	}
	if store == nil {
		return exitWithError(apierr.Validation("deployment history is disabled",
			"remove history.disabled from hoist.yaml"))
	}

	project, limit := s.project, c.Int("limit")
	if c.Bool("all") {
		project, limit = "", 0
	}
	if c.Bool("stats") {
		limit = 0
	}

	recs, err := store.List(c.Context, project, limit)
	if err != nil && !errors.Is(err, history.ErrNoDeployments) {
		return exitWithError(err)
	}

	if c.Bool("stats") {
		stats := history.Summarize(recs)
		if c.Bool("tui") {
			return r.RenderTUI(tui.ViewStatsHistory, &stats)
		}
		return r.Render(stats)
	}

	if len(recs) > historyWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d deployments. Consider using --limit to reduce output.\n\n", len(recs))
	}
	if r.Format() == render.FormatTable {
		return r.Render(newHistoryRows(recs))
	}
	return r.Render(recs)
}
