package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/lavallee/cub-sub002/internal/artifacts"
	"github.com/lavallee/cub-sub002/internal/policy"
)

// triageOpenMsg asks the model to open the triage modal for one failed
// attempt. The decision is delivered on reply.
type triageOpenMsg struct {
	taskID   string
	exitCode int
	output   string
	reply    chan policy.Signal
}

// Answerer bridges the run loop's triage escalation into the program:
// it opens the modal and blocks until the operator decides or the
// context ends. It runs on the triage handler goroutine, never the UI
// goroutine.
func Answerer(p *tea.Program) func(ctx context.Context, taskID string, rec artifacts.Record) (policy.Signal, error) {
	return func(ctx context.Context, taskID string, rec artifacts.Record) (policy.Signal, error) {
		reply := make(chan policy.Signal, 1)
		p.Send(triageOpenMsg{taskID: taskID, exitCode: rec.ExitCode, output: rec.Output, reply: reply})
		select {
		case sig := <-reply:
			return sig, nil
		case <-ctx.Done():
			return policy.SignalContinue, ctx.Err()
		}
	}
}

// TriageModalModel is the decision form shown when a failed attempt
// escalates to triage.
type TriageModalModel struct {
	form     *huh.Form
	taskID   string
	exitCode int
	output   string
	reply    chan policy.Signal
	choice   string
	width    int
	height   int
	visible  bool
}

// NewTriageModalModel creates a hidden triage modal.
func NewTriageModalModel() TriageModalModel {
	return TriageModalModel{}
}

// Open arms the modal for one escalation and returns the form init cmd.
func (m *TriageModalModel) Open(msg triageOpenMsg) tea.Cmd {
	m.taskID = msg.taskID
	m.exitCode = msg.exitCode
	m.output = msg.output
	m.reply = msg.reply
	m.choice = "continue"
	m.visible = true
	m.buildForm()
	return m.form.Init()
}

func (m *TriageModalModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("decision").
				Title(fmt.Sprintf("Task %s failed with exit code %d", m.taskID, m.exitCode)).
				Options(
					huh.NewOption("Continue: abandon this task, keep the run going", "continue"),
					huh.NewOption("Retry: re-attempt the same task", "retry"),
					huh.NewOption("Halt: end the whole run", "halt"),
				).
				Value(&m.choice),
		),
	)
	if m.width > 0 {
		m.form = m.form.WithWidth(m.width - 8)
	}
}

// Update handles messages for the triage modal.
func (m TriageModalModel) Update(msg tea.Msg) (TriageModalModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		// Dismissing without a decision continues the run; stop stays
		// the only hard-fatal path.
		m.answer(policy.SignalContinue)
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		switch m.choice {
		case "halt":
			m.answer(policy.SignalHalt)
		case "retry":
			m.answer(policy.SignalRetryCurrent)
		default:
			m.answer(policy.SignalContinue)
		}
	}

	return m, cmd
}

// answer delivers the decision and hides the modal.
func (m *TriageModalModel) answer(sig policy.Signal) {
	if m.reply != nil {
		m.reply <- sig
		m.reply = nil
	}
	m.visible = false
}

// View renders the triage modal.
func (m TriageModalModel) View() string {
	if !m.visible {
		return ""
	}

	var b strings.Builder

	if m.output != "" {
		lines := strings.Split(strings.TrimRight(m.output, "\n"), "\n")
		if len(lines) > 10 {
			lines = lines[len(lines)-10:]
		}
		b.WriteString(StyleStatusOpen.Render(strings.Join(lines, "\n")))
		b.WriteString("\n\n")
	}
	b.WriteString(m.form.View())

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4)

	title := StyleTitle.
		Foreground(lipgloss.Color("62")).
		Render("Triage")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(b.String()))
}

// SetSize updates the dimensions of the modal.
func (m *TriageModalModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form = m.form.WithWidth(w - 8)
	}
}

// IsVisible reports whether the modal is currently shown.
func (m TriageModalModel) IsVisible() bool {
	return m.visible
}
