package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lavallee/cub-sub002/internal/events"
)

// TaskView is the display state of one task the run has touched.
type TaskView struct {
	ID        string
	Title     string
	Status    string // "running", "closed", "failed"
	Attempt   int
	Output    []string
	StartTime time.Time
	Duration  time.Duration
	Tokens    int
}

// TaskPaneModel is the task list plus the output viewport for the
// selected task.
type TaskPaneModel struct {
	tasks       map[string]*TaskView // task id -> view state
	order       []string             // first-seen order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing output refreshes
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*TaskView),
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Delegate other keys to viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if tv, exists := m.tasks[msg.ID]; exists {
			// A re-attempt of a task we already show.
			tv.Status = "running"
			tv.Attempt = msg.Attempt
			tv.Output = append(tv.Output, "", fmt.Sprintf("--- attempt %d ---", msg.Attempt))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		} else {
			m.tasks[msg.ID] = &TaskView{
				ID:        msg.ID,
				Title:     msg.Title,
				Status:    "running",
				Attempt:   msg.Attempt,
				Output:    make([]string, 0),
				StartTime: msg.Timestamp,
			}
			m.order = append(m.order, msg.ID)
			if len(m.order) == 1 {
				m.selectedIdx = 0
				m.updateViewportContent()
			}
		}

	case events.TaskOutputEvent:
		if tv, exists := m.tasks[msg.ID]; exists {
			tv.Output = append(tv.Output, msg.Line)
			// Refresh the viewport with debouncing when visible
			if m.selectedTaskID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if tv, exists := m.tasks[msg.ID]; exists {
			tv.Status = "closed"
			tv.Duration = msg.Duration
			tv.Tokens = msg.Tokens
			tv.Output = append(tv.Output, fmt.Sprintf("\n[closed in %v, %d tokens]", msg.Duration.Round(time.Millisecond), msg.Tokens))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if tv, exists := m.tasks[msg.ID]; exists {
			tv.Status = "failed"
			tv.Duration = msg.Duration
			tv.Output = append(tv.Output, fmt.Sprintf("\n[failed: exit %d, %s]", msg.ExitCode, msg.Signal))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		// Only refresh when the tick matches the latest tag
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 25
	viewportWidth := m.width - listWidth - 4 // borders and padding

	listContent := m.renderTaskList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column.
func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusOpen.Render("Waiting..."))
	} else {
		for i, id := range m.order {
			tv := m.tasks[id]
			icon := statusIcon(tv.Status)
			label := tv.Title
			if label == "" {
				label = tv.ID
			}
			if tv.Attempt > 1 {
				label = fmt.Sprintf("%s (#%d)", label, tv.Attempt)
			}
			if len(label) > width-6 {
				label = label[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", icon, label)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// statusIcon returns a styled status indicator.
func statusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "closed":
		return StyleStatusClosed.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusOpen.Render("○")
	}
}

// selectedTaskID returns the id of the currently selected task.
func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// updateViewportContent fills the viewport with the selected task's output.
func (m *TaskPaneModel) updateViewportContent() {
	id := m.selectedTaskID()
	if id == "" {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	tv, exists := m.tasks[id]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	m.viewport.SetContent(strings.Join(tv.Output, "\n"))
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *TaskPaneModel) resizeViewport() {
	listWidth := 25
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
