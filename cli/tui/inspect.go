package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/hoist/types"
)

const timeLayout = "2006-01-02 15:04:05"

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	now      func() time.Time
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
		now:      time.Now,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectBuild:
		content = m.renderInspectBuild()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectBuild() string {
	rec, ok := m.data.(*types.BuildRecord)
	if !ok || rec == nil {
		return "Invalid data type for inspect_build"
	}
	return BoxStyle.Render(renderBuild(rec, m.now()))
}

// renderBuild renders the detail block shared by inspect and watch.
func renderBuild(rec *types.BuildRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Build " + rec.BuildID))
	b.WriteString("\n")

	field := func(label, value string, style lipgloss.Style) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(label+":"), style.Render(value))
	}
	field("Status", rec.Status.Label(), StatusStyle(rec.Status))
	field("Project", rec.ProjectID, ValueStyle)
	if !rec.CreatedAt.IsZero() {
		field("Created", rec.CreatedAt.Local().Format(timeLayout), ValueStyle)
	}
	if !rec.UpdatedAt.IsZero() {
		field("Updated", rec.UpdatedAt.Local().Format(timeLayout), ValueStyle)
	}
	field("URL", rec.URL, ActiveStyle)
	if rec.Rollout != nil {
		rollout := fmt.Sprintf("%d%%", rec.Rollout.Percent)
		if rec.Rollout.Phase != "" {
			rollout = rec.Rollout.Phase + " " + rollout
		}
		field("Rollout", rollout, ValueStyle)
	}

	b.WriteString("\n")
	b.WriteString(RenderStages(rec.Stages, now))
	b.WriteString("\n")

	if rec.Status.IsFailure() {
		b.WriteString("\n")
		b.WriteString(renderFailure(rec))
	}
	return b.String()
}

// renderFailure renders the error context of a failed build.
func renderFailure(rec *types.BuildRecord) string {
	var b strings.Builder
	b.WriteString(ErrorStyle.Render(rec.FailureMessage()))
	b.WriteString("\n")
	if ec := rec.ErrorContext; ec != nil {
		for _, c := range ec.Causes {
			b.WriteString("  " + MutedStyle.Render("cause: ") + c + "\n")
		}
		for _, r := range ec.Remediation {
			b.WriteString("  " + MutedStyle.Render("try: ") + r + "\n")
		}
	}
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
