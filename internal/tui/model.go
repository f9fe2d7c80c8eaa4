// Package tui renders the live run dashboard: a task list with output,
// graph progress, a rolling event log, and the triage decision modal.
// It is fed entirely by the event bus, so `run --tui` and
// `status --watch` share one model.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lavallee/cub-sub002/internal/events"
)

// maxLogLines bounds the rolling event log.
const maxLogLines = 100

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneGraph
	PaneLog
)

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	taskPane    TaskPaneModel
	graphPane   GraphPaneModel
	triage      TriageModalModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	log         []string
	width       int
	height      int
	quitting    bool
}

// New creates the dashboard model, subscribed to the full event stream.
func New(bus *events.Bus) Model {
	return Model{
		taskPane:    NewTaskPaneModel(),
		graphPane:   NewGraphPaneModel(),
		triage:      NewTriageModalModel(),
		focusedPane: PaneTasks,
		eventSub:    bus.SubscribeAll(256),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// An open triage modal captures all keys
		if m.triage.IsVisible() {
			var cmd tea.Cmd
			m.triage, cmd = m.triage.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneLog
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.triage.SetSize(msg.Width, msg.Height)

	case triageOpenMsg:
		m.log = appendLog(m.log, fmt.Sprintf("? %s awaiting triage", msg.taskID))
		cmds = append(cmds, m.triage.Open(msg))

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskStartedEvent, events.TaskOutputEvent, events.TaskCompletedEvent, events.TaskFailedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.log = appendEventLog(m.log, msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RunStartedEvent, events.RunFinishedEvent, events.GraphProgressEvent, events.BudgetWarningEvent:
		var cmd tea.Cmd
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd)
		m.log = appendEventLog(m.log, msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TriageRequestedEvent:
		// The modal opens through the answer bridge; the bus event only
		// feeds the log.
		m.log = appendEventLog(m.log, msg)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// appendEventLog formats one bus event into the rolling log. Output
// lines are skipped; the task pane already shows them.
func appendEventLog(log []string, msg tea.Msg) []string {
	switch ev := msg.(type) {
	case events.RunStartedEvent:
		return appendLog(log, fmt.Sprintf("run started (%s via %s)", ev.Mode, ev.Harness))
	case events.RunFinishedEvent:
		return appendLog(log, fmt.Sprintf("run finished: %s (%d closed, %d failed)", ev.Outcome, ev.Completed, ev.Failed))
	case events.TaskStartedEvent:
		return appendLog(log, fmt.Sprintf("> %s attempt %d", ev.ID, ev.Attempt))
	case events.TaskCompletedEvent:
		return appendLog(log, fmt.Sprintf("+ %s closed (%d tokens)", ev.ID, ev.Tokens))
	case events.TaskFailedEvent:
		return appendLog(log, fmt.Sprintf("x %s exit %d (%s)", ev.ID, ev.ExitCode, ev.Signal))
	case events.BudgetWarningEvent:
		return appendLog(log, fmt.Sprintf("budget warning: %d/%d tokens (%d%%)", ev.Used, ev.Limit, ev.Percent))
	case events.TriageRequestedEvent:
		return appendLog(log, fmt.Sprintf("? %s escalated to triage", ev.ID))
	}
	return log
}

func appendLog(log []string, line string) []string {
	log = append(log, line)
	if len(log) > maxLogLines {
		log = log[len(log)-maxLogLines:]
	}
	return log
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// An open triage modal replaces the dashboard until answered
	if m.triage.IsVisible() {
		return m.triage.View()
	}

	leftWidth := (m.width * 35) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar
	rightTopHeight := (availableHeight * 70) / 100
	rightBottomHeight := availableHeight - rightTopHeight

	leftPane := m.taskPane.View()
	rightTop := m.graphPane.View()
	rightBottom := m.renderLog(rightWidth, rightBottomHeight)

	rightPane := lipgloss.JoinVertical(lipgloss.Left, rightTop, rightBottom)
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// renderLog renders the rolling event log pane.
func (m Model) renderLog(width, height int) string {
	visible := height - 4
	if visible < 1 {
		visible = 1
	}
	lines := m.log
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}

	content := StyleTitle.Render("Events") + "\n"
	for _, line := range lines {
		if len(line) > width-4 {
			line = line[:width-7] + "..."
		}
		content += line + "\n"
	}

	style := StyleUnfocusedBorder
	if m.focusedPane == PaneLog {
		style = StyleFocusedBorder
	}
	return style.
		Width(width - 2).
		Height(height - 2).
		Render(content)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 35) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1
	rightTopHeight := (availableHeight * 70) / 100

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.graphPane.SetSize(rightWidth, rightTopHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
}
