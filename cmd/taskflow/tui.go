package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/events"
)

// Styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleRunning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Bold(true)

	styleCompleted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	styleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	styleWaiting = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	styleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(0, 1)
)

// taskRow tracks the display state of one scheduled task.
type taskRow struct {
	handle uint64
	name   string
	status string
	fires  int
}

// model is the Bubble Tea model for the demo: a task table fed by the
// scheduler's event bus plus a scrollback of event lines.
type model struct {
	eventSub <-chan events.Event
	rows     []taskRow
	index    map[uint64]int
	viewport viewport.Model
	lines    []string
	width    int
	height   int
	quitting bool
}

func newModel(sub <-chan events.Event) model {
	vp := viewport.New(0, 0)
	return model{
		eventSub: sub,
		index:    make(map[uint64]int),
		viewport: vp,
	}
}

// Init starts listening for scheduler events.
func (m model) Init() tea.Cmd {
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
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-len(m.rows)-6)
		m.refreshViewport()

	case events.Event:
		m.apply(msg)
		return m, waitForEvent(m.eventSub)
	}

	return m, nil
}

// apply folds one scheduler event into the display state.
func (m *model) apply(ev events.Event) {
	now := time.Now().Format("15:04:05.000")
	switch e := ev.(type) {
	case events.TaskScheduledEvent:
		m.upsert(e.Handle, e.Name, "waiting")
		m.log(fmt.Sprintf("%s scheduled  %s", now, e.Name))
	case events.TaskStartedEvent:
		m.upsert(e.Handle, e.Name, "running")
		m.log(fmt.Sprintf("%s started    %s (run %s)", now, e.Name, shortID(e.RunID.String())))
	case events.TaskCompletedEvent:
		row := m.upsert(e.Handle, e.Name, "completed")
		row.fires++
		m.log(fmt.Sprintf("%s completed  %s in %s", now, e.Name, e.Duration.Round(time.Millisecond)))
	case events.TaskFailedEvent:
		row := m.upsert(e.Handle, e.Name, "failed")
		row.fires++
		m.log(fmt.Sprintf("%s failed     %s: %v", now, e.Name, e.Err))
	case events.TaskCancelledEvent:
		m.upsert(e.Handle, e.Name, "cancelled")
		m.log(fmt.Sprintf("%s cancelled  %s", now, e.Name))
	case events.SchedulerStoppedEvent:
		m.log(fmt.Sprintf("%s scheduler stopped", now))
	}
}

func (m *model) upsert(handle uint64, name, status string) *taskRow {
	if i, ok := m.index[handle]; ok {
		m.rows[i].status = status
		return &m.rows[i]
	}
	m.rows = append(m.rows, taskRow{handle: handle, name: name, status: status})
	m.index[handle] = len(m.rows) - 1
	return &m.rows[len(m.rows)-1]
}

func (m *model) log(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > 500 {
		m.lines = m.lines[len(m.lines)-500:]
	}
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// View renders the task table and the event scrollback.
func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("taskflow pipeline"))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		style := styleWaiting
		switch row.status {
		case "running":
			style = styleRunning
		case "completed":
			style = styleCompleted
		case "failed", "cancelled":
			style = styleFailed
		}
		fires := ""
		if row.fires > 1 {
			fires = fmt.Sprintf(" x%d", row.fires)
		}
		b.WriteString(fmt.Sprintf("  %-20s %s%s\n", row.name, style.Render(row.status), fires))
	}

	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(styleHelp.Render("q: quit"))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
