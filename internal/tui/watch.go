// Package tui provides the live execution monitor shown by `flowctl run --watch`.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/flowctl/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Bold(true)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFF00"))

	statusDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	statusFailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type (
	snapshotMsg     orchestrator.Snapshot
	streamClosedMsg struct{}
)

// WatchModel renders live progress snapshots of one execution.
type WatchModel struct {
	executionID string

	spinner spinner.Model
	bar     progress.Model

	snap      orchestrator.Snapshot
	events    <-chan orchestrator.Snapshot
	cancel    func() bool
	cancelled bool
	done      bool
	width     int
}

// NewWatch creates a monitor over the given snapshot stream. The cancel
// callback is invoked when the user hits q or ctrl+c mid-run.
func NewWatch(executionID string, events <-chan orchestrator.Snapshot, cancel func() bool) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusRunningStyle

	return WatchModel{
		executionID: executionID,
		spinner:     s,
		bar:         progress.New(progress.WithDefaultGradient()),
		events:      events,
		cancel:      cancel,
		width:       60,
	}
}

// Init starts the spinner and the snapshot pump.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForSnapshot())
}

func (m WatchModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Update handles snapshots, animation frames and key presses.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done && m.cancel != nil && !m.cancelled {
				m.cancelled = m.cancel()
				// Stay up to show the cancelled terminal snapshot.
				return m, m.waitForSnapshot()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case snapshotMsg:
		m.snap = orchestrator.Snapshot(msg)
		cmd := m.bar.SetPercent(m.completionRatio())
		if m.snap.Status.Terminal() {
			m.done = true
			return m, tea.Sequence(cmd, tea.Quit)
		}
		return m, tea.Batch(cmd, m.waitForSnapshot())

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) completionRatio() float64 {
	if m.snap.Total == 0 {
		return 0
	}
	done := m.snap.Completed + m.snap.Failed + m.snap.Skipped
	return float64(done) / float64(m.snap.Total)
}

// View renders the monitor frame.
func (m WatchModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("flowctl "+m.executionID) + "\n\n")

	sb.WriteString(m.statusLine() + "\n")
	sb.WriteString(m.bar.View() + "\n")
	fmt.Fprintf(&sb, "%s\n", stepStyle.Render(fmt.Sprintf(
		"%d completed · %d failed · %d skipped · %d total",
		m.snap.Completed, m.snap.Failed, m.snap.Skipped, m.snap.Total)))

	if len(m.snap.Running) > 0 {
		sb.WriteString("\n")
		for _, id := range m.snap.Running {
			fmt.Fprintf(&sb, "  %s %s\n", m.spinner.View(), stepStyle.Render(id))
		}
	}

	if !m.done {
		sb.WriteString("\n" + hintStyle.Render("q to cancel"))
	}

	return frameStyle.Render(sb.String()) + "\n"
}

func (m WatchModel) statusLine() string {
	switch m.snap.Status {
	case orchestrator.ExecutionCompleted:
		return statusDoneStyle.Render("✓ completed")
	case orchestrator.ExecutionFailed, orchestrator.ExecutionEmergencyStopped:
		return statusFailStyle.Render("✗ " + string(m.snap.Status))
	case orchestrator.ExecutionCancelled:
		return statusRunningStyle.Render("− cancelled")
	default:
		return m.spinner.View() + " " + statusRunningStyle.Render(string(m.snap.Status))
	}
}

// Watch runs the monitor until the execution reaches a terminal state
// or the user quits.
func Watch(executionID string, sink *orchestrator.ChannelSink, cancel func() bool) error {
	p := tea.NewProgram(NewWatch(executionID, sink.Events(), cancel))
	_, err := p.Run()
	return err
}
