package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/hoist/types"
)

// Stage glyphs.
const (
	glyphDone    = "✓"
	glyphActive  = "●"
	glyphPending = "○"
)

// RenderStages renders the stage map as an indented tree in pipeline order.
// Sub-stages are listed under the build and deploy stages once the stage
// has started.
func RenderStages(stages *types.Stages, now time.Time) string {
	if stages == nil {
		return MutedStyle.Render("no stage data yet")
	}
	var b strings.Builder
	for _, e := range stages.Entries() {
		b.WriteString(stageLine(string(e.Name), e.Info, e.Present, now, ""))
		if e.Name == types.StageQueue && stages.Queue != nil && stages.Queue.Position != nil && e.Info.Active() {
			pos := fmt.Sprintf("position %d", *stages.Queue.Position)
			if stages.Queue.Total != nil {
				pos += fmt.Sprintf(" of %d", *stages.Queue.Total)
			}
			b.WriteString("    " + MutedStyle.Render(pos) + "\n")
		}
		if !e.Present || !e.Info.Started() {
			continue
		}
		var subs []types.SubStageState
		switch e.Name {
		case types.StageBuild:
			subs = stages.Build.Progress()
		case types.StageDeploy:
			subs = stages.Deploy.Progress()
		}
		for _, s := range subs {
			b.WriteString(stageLine(s.Name, s.Info, s.Reached, now, "  "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stageLine(name string, info types.StageInfo, present bool, now time.Time, indent string) string {
	switch {
	case present && info.Completed():
		return fmt.Sprintf("%s%s %s %s\n", indent, SuccessStyle.Render(glyphDone), name,
			MutedStyle.Render(FormatDuration(info.Elapsed(now))))
	case present && info.Active():
		return fmt.Sprintf("%s%s %s %s\n", indent, ActiveStyle.Render(glyphActive), ActiveStyle.Render(name),
			MutedStyle.Render(FormatDuration(info.Elapsed(now))))
	default:
		return fmt.Sprintf("%s%s %s\n", indent, MutedStyle.Render(glyphPending), MutedStyle.Render(name))
	}
}

// FormatDuration renders d rounded to the second, "<1s" below a second.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}
