package render

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pithecene-io/hoist/cli/tui"
	"github.com/pithecene-io/hoist/types"
)

// renderRecord lays out a build record as a sheet followed by one line per
// pipeline stage, in pipeline order.
func (r *Renderer) renderRecord(rec *types.BuildRecord) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	status := rec.Status.Label()
	if !r.noColor {
		status = tui.StatusStyle(rec.Status).Render(status)
	}

	fmt.Fprintf(w, "build:\t%s\n", rec.BuildID)
	if rec.ProjectID != "" {
		fmt.Fprintf(w, "project:\t%s\n", rec.ProjectID)
	}
	fmt.Fprintf(w, "status:\t%s\n", status)
	if rec.Rollout != nil {
		fmt.Fprintf(w, "rollout:\t%s %d%%\n", rec.Rollout.Phase, rec.Rollout.Percent)
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated:\t%s\n", rec.UpdatedAt.Local().Format(timeLayout))
	}
	if rec.URL != "" {
		fmt.Fprintf(w, "url:\t%s\n", rec.URL)
	}
	if rec.Status.IsFailure() {
		if msg := rec.FailureMessage(); msg != "" {
			fmt.Fprintf(w, "error:\t%s\n", msg)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if rec.Stages == nil {
		return nil
	}
	fmt.Fprintln(r.out, "stages:")
	w = tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	now := time.Now()
	for _, e := range rec.Stages.Entries() {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Name, stageState(e), stageElapsed(e, now))
	}
	return w.Flush()
}

func stageState(e types.StageEntry) string {
	switch {
	case !e.Present || !e.Info.Started():
		return "pending"
	case e.Info.Active():
		return "running"
	default:
		return "done"
	}
}

func stageElapsed(e types.StageEntry, now time.Time) string {
	if !e.Present || !e.Info.Started() {
		return ""
	}
	return e.Info.Elapsed(now).Round(100 * time.Millisecond).String()
}
