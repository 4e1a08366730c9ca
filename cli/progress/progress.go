// Package progress renders deployment progress as plain terminal lines.
//
// A Printer implements deploy.Reporter and track.Renderer. It writes one
// line per change and never redraws earlier output, except for the upload
// bar which is redrawn in place on interactive terminals.
package progress

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/tui"
	"github.com/pithecene-io/hoist/deploy"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
)

const barWidth = 32

// Options configures a Printer.
type Options struct {
	// Interactive redraws the upload bar in place. Non-interactive output
	// prints only the final upload line.
	Interactive bool
	// NoColor disables styling.
	NoColor bool
	// Now overrides the clock used for stage timings.
	Now func() time.Time
}

// Printer writes progress to a terminal or log file.
type Printer struct {
	mu          sync.Mutex
	out         io.Writer
	opts        Options
	bar         bprogress.Model
	uploadShown bool
}

// New creates a Printer writing to out.
func New(out io.Writer, opts Options) *Printer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Printer{
		out:  out,
		opts: opts,
		bar:  bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(barWidth)),
	}
}

func (p *Printer) style(s lipgloss.Style) lipgloss.Style {
	if p.opts.NoColor {
		return lipgloss.NewStyle()
	}
	return s
}

func (p *Printer) printf(format string, args ...any) {
	p.endUploadLine()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// endUploadLine terminates an in-place upload bar before other output.
func (p *Printer) endUploadLine() {
	if p.uploadShown && p.opts.Interactive {
		_, _ = io.WriteString(p.out, "\n")
	}
	p.uploadShown = false
}

// Step implements deploy.Reporter.
func (p *Printer) Step(step deploy.Step, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := p.style(tui.ActiveStyle).Render("→ " + string(step))
	if detail != "" {
		line += " " + p.style(tui.MutedStyle).Render(detail)
	}
	p.printf("%s\n", line)
}

// Advisory implements deploy.Reporter.
func (p *Printer) Advisory(a types.Advisory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	style := p.style(tui.MutedStyle)
	if a.Severity == types.AdvisoryWarning {
		style = p.style(tui.WarningStyle)
	}
	msg := a.Message
	if a.Code != "" {
		msg = fmt.Sprintf("[%s] %s", a.Code, msg)
	}
	p.printf("%s\n", style.Render("! "+msg))
}

// UploadProgress implements deploy.Reporter.
func (p *Printer) UploadProgress(sent, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	final := total > 0 && sent >= total
	if !p.opts.Interactive && !final {
		return
	}

	var pct float64
	if total > 0 {
		pct = float64(sent) / float64(total)
	}
	gauge := fmt.Sprintf("%3.0f%%", pct*100)
	if !p.opts.NoColor {
		gauge = p.bar.ViewAs(pct)
	}
	line := fmt.Sprintf("  %s %s / %s", gauge, FormatBytes(sent), FormatBytes(total))
	if p.opts.Interactive {
		_, _ = fmt.Fprintf(p.out, "\r%s", line)
		p.uploadShown = true
		if final {
			p.endUploadLine()
		}
		return
	}
	_, _ = fmt.Fprintln(p.out, line)
}

// StatusChanged implements track.Renderer.
func (p *Printer) StatusChanged(rec *types.BuildRecord, _ types.BuildStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := p.style(tui.StatusStyle(rec.Status)).Render("● " + rec.Status.Label())
	if rec.Rollout != nil && rec.Rollout.Percent > 0 {
		line += p.style(tui.MutedStyle).Render(fmt.Sprintf(" (rollout %d%%)", rec.Rollout.Percent))
	}
	p.printf("%s\n", line)
}

// StagesChanged implements track.Renderer. Only the active stage is printed.
func (p *Printer) StagesChanged(rec *types.BuildRecord, remaining time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := rec.Stages.Active()
	if !ok {
		return
	}
	info, _ := rec.Stages.Info(name)
	line := fmt.Sprintf("  %s %s", string(name), tui.FormatDuration(info.Elapsed(p.opts.Now())))
	if sub := activeSubStage(rec.Stages, name); sub != "" {
		line += " · " + sub
	}
	if remaining > 0 {
		line += " · about " + tui.FormatDuration(remaining) + " remaining"
	}
	p.printf("%s\n", p.style(tui.MutedStyle).Render(line))
}

func activeSubStage(stages *types.Stages, name types.StageName) string {
	var subs []types.SubStageState
	switch name {
	case types.StageBuild:
		subs = stages.Build.Progress()
	case types.StageDeploy:
		subs = stages.Deploy.Progress()
	}
	for _, s := range subs {
		if s.Reached && s.Info.Active() {
			return s.Name
		}
	}
	return ""
}

// LogLines implements track.Renderer.
func (p *Printer) LogLines(lines []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := p.style(tui.MutedStyle).Render("│ ")
	for _, line := range lines {
		p.printf("%s%s\n", prefix, line)
	}
}

// BuildFailed implements track.Renderer.
func (p *Printer) BuildFailed(rec *types.BuildRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printf("%s\n", p.style(tui.ErrorStyle).Render("✗ "+rec.FailureMessage()))
	if ec := rec.ErrorContext; ec != nil {
		for _, c := range ec.Causes {
			p.printf("  cause: %s\n", c)
		}
		for _, r := range ec.Remediation {
			p.printf("  → %s\n", r)
		}
	}
}

// Summary implements deploy.Reporter.
func (p *Printer) Summary(res *deploy.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	took := tui.FormatDuration(res.Duration)
	switch res.Outcome {
	case deploy.OutcomeSucceeded:
		p.printf("%s\n", p.style(tui.SuccessStyle).Render(fmt.Sprintf("✓ %s in %s", res.Message(), took)))
		if res.Record != nil && res.Record.URL != "" {
			p.printf("  %s\n", res.Record.URL)
		}
	case deploy.OutcomeSubmitted, deploy.OutcomeStopped:
		p.printf("%s\n", p.style(tui.WarningStyle).Render("◌ "+res.Message()))
		p.printf("  follow it with: hoist status %s --watch\n", res.BuildID)
	case deploy.OutcomeTimedOut:
		p.printf("%s\n", p.style(tui.ErrorStyle).Render("✗ "+res.Message()))
		p.printf("  the build may still finish; check it with: hoist status %s\n", res.BuildID)
	default:
		p.printf("%s\n", p.style(tui.ErrorStyle).Render("✗ deployment failed after "+took))
		var failed *track.BuildFailedError
		if errors.As(res.Err, &failed) {
			// already rendered by BuildFailed
			return
		}
		if detail := ErrorDetail(res.Err); detail != "" {
			p.printf("%s\n", detail)
		}
	}
}

// ErrorDetail renders an error with its next steps when it carries them.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	var ctxErr *apierr.Error
	if errors.As(err, &ctxErr) {
		return "  " + strings.ReplaceAll(ctxErr.Detail(), "\n", "\n  ")
	}
	return "  " + err.Error()
}

// FormatBytes renders n in binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

var (
	_ deploy.Reporter = (*Printer)(nil)
	_ track.Renderer  = (*Printer)(nil)
)
