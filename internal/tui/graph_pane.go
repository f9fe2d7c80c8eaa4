package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lavallee/cub-sub002/internal/events"
)

// GraphPaneModel shows run identity, graph progress counts, and budget
// state.
type GraphPaneModel struct {
	runID      string
	mode       string
	harness    string
	outcome    string
	total      int
	closed     int
	inProgress int
	open       int
	ready      int
	blocked    int
	budgetUsed int
	budgetMax  int
	budgetWarn bool
	width      int
	height     int
	focused    bool
}

// NewGraphPaneModel creates a new graph pane model.
func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{}
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunStartedEvent:
		m.runID = msg.RunID
		m.mode = msg.Mode
		m.harness = msg.Harness
		m.outcome = ""

	case events.RunFinishedEvent:
		m.outcome = msg.Outcome

	case events.GraphProgressEvent:
		m.total = msg.Total
		m.closed = msg.Closed
		m.inProgress = msg.InProgress
		m.open = msg.Open
		m.ready = msg.Ready
		m.blocked = msg.Blocked

	case events.BudgetWarningEvent:
		m.budgetUsed = msg.Used
		m.budgetMax = msg.Limit
		m.budgetWarn = true
	}

	return m, nil
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Graph")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.runID != "" {
		short := m.runID
		if len(short) > 8 {
			short = short[:8]
		}
		b.WriteString(fmt.Sprintf("Run:      %s (%s via %s)\n", short, m.mode, m.harness))
	}
	if m.outcome != "" {
		b.WriteString(StyleOutcome.Render(fmt.Sprintf("Outcome: %s", m.outcome)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Total:       %d\n", m.total))
	b.WriteString(fmt.Sprintf("Closed:      %s\n", StyleStatusClosed.Render(fmt.Sprintf("%d", m.closed))))
	b.WriteString(fmt.Sprintf("In progress: %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress))))
	b.WriteString(fmt.Sprintf("Open:        %s\n", StyleStatusOpen.Render(fmt.Sprintf("%d", m.open))))
	b.WriteString(fmt.Sprintf("Ready:       %d   Blocked: %d\n", m.ready, m.blocked))

	b.WriteString("\n")

	// Progress bar over closed tasks
	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		closedWidth := (m.closed * barWidth) / m.total
		runningWidth := (m.inProgress * barWidth) / m.total
		openWidth := barWidth - closedWidth - runningWidth

		bar := StyleStatusClosed.Render(strings.Repeat("=", max(0, closedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusOpen.Render(strings.Repeat(".", max(0, openWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.closed, m.total))
	}

	if m.budgetWarn {
		b.WriteString("\n")
		b.WriteString(StyleBudgetWarn.Render(fmt.Sprintf("Budget: %d/%d tokens", m.budgetUsed, m.budgetMax)))
		b.WriteString("\n")
	}

	content := b.String()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
