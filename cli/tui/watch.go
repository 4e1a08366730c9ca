package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
)

// maxWatchLogLines bounds the log tail shown under the stage tree.
const maxWatchLogLines = 12

// Messages sent from the tracking goroutine.
type (
	recordMsg struct {
		rec       *types.BuildRecord
		remaining time.Duration
	}
	logsMsg []string
	doneMsg struct {
		rec *types.BuildRecord
		err error
	}
)

// WatchModel is a live view of one build while it is tracked.
type WatchModel struct {
	buildID   string
	rec       *types.BuildRecord
	remaining time.Duration
	logs      []string
	spinner   spinner.Model
	now       func() time.Time
	stop      func()
	done      bool
	err       error
}

// NewWatchModel creates a watch model. stop is called when the user quits
// before tracking ends; it must stop tracking without touching the build.
func NewWatchModel(buildID string, stop func()) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ActiveStyle
	return WatchModel{
		buildID: buildID,
		spinner: s,
		now:     time.Now,
		stop:    stop,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		}

	case recordMsg:
		m.rec = msg.rec
		if msg.remaining >= 0 {
			m.remaining = msg.remaining
		}
		return m, nil

	case logsMsg:
		m.logs = append(m.logs, msg...)
		if over := len(m.logs) - maxWatchLogLines; over > 0 {
			m.logs = m.logs[over:]
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		if msg.rec != nil {
			m.rec = msg.rec
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var b strings.Builder
	if m.rec == nil {
		fmt.Fprintf(&b, "%s waiting for build %s\n", m.spinner.View(), m.buildID)
	} else {
		b.WriteString(renderBuild(m.rec, m.now()))
		if !m.done && !m.rec.Status.IsTerminal() {
			fmt.Fprintf(&b, "\n%s %s", m.spinner.View(), m.rec.Status.Label())
			if m.remaining > 0 {
				b.WriteString(MutedStyle.Render(" · about " + FormatDuration(m.remaining) + " remaining"))
			}
			b.WriteString("\n")
		}
	}
	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString(MutedStyle.Render("│ ") + line + "\n")
		}
	}
	if m.done {
		return b.String()
	}
	return b.String() + HelpStyle.Render("Press q to stop watching; the build continues")
}

// watchRenderer forwards tracker callbacks to a running program.
type watchRenderer struct {
	send func(tea.Msg)
}

func (r *watchRenderer) StatusChanged(rec *types.BuildRecord, _ types.BuildStatus) {
	r.send(recordMsg{rec: rec, remaining: -1})
}

func (r *watchRenderer) StagesChanged(rec *types.BuildRecord, remaining time.Duration) {
	r.send(recordMsg{rec: rec, remaining: remaining})
}

func (r *watchRenderer) LogLines(lines []string) {
	r.send(logsMsg(lines))
}

func (r *watchRenderer) BuildFailed(rec *types.BuildRecord) {
	r.send(recordMsg{rec: rec, remaining: -1})
}

var _ track.Renderer = (*watchRenderer)(nil)

// TrackFunc runs tracking with the given renderer until it ends.
type TrackFunc func(ctx context.Context, r track.Renderer) (*types.BuildRecord, error)

// RunWatch shows a live view while fn tracks buildID. Quitting the view
// stops tracking; fn then returns track.ErrTrackingStopped. The result of
// fn is returned unchanged.
func RunWatch(ctx context.Context, buildID string, fn TrackFunc, opts ...tea.ProgramOption) (*types.BuildRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewWatchModel(buildID, cancel), opts...)

	type result struct {
		rec *types.BuildRecord
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		rec, err := fn(ctx, &watchRenderer{send: p.Send})
		p.Send(doneMsg{rec: rec, err: err})
		resCh <- result{rec, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-resCh
		return nil, fmt.Errorf("watch view failed: %w", err)
	}
	cancel()
	res := <-resCh
	return res.rec, res.err
}
