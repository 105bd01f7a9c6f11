package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"galleryzip/pkg/convergence"
	"galleryzip/pkg/crawler"
)

// TaskStartMsg is sent when a task starts
type TaskStartMsg struct {
	ID  string
	URL string
}

// PhaseMsg is sent when a task enters a phase
type PhaseMsg struct {
	ID    string
	Phase crawler.Phase
}

// ScrollMsg carries a scroll loop state
type ScrollMsg struct {
	ID    string
	State convergence.State
}

// ImagesFoundMsg is sent after extraction
type ImagesFoundMsg struct {
	ID    string
	Count int
}

// ImageDoneMsg is sent per finished download
type ImageDoneMsg struct {
	ID      string
	Success bool
	Size    int64
}

// TaskDoneMsg carries a task completion
type TaskDoneMsg struct {
	Completion crawler.Completion
}

// BatchDoneMsg is sent once every task has completed
type BatchDoneMsg struct{}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to refresh elapsed times
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.batchDone {
			return m, nil
		}
		return m, tickCmd()

	case TaskStartMsg:
		m.StartTask(msg.ID, msg.URL)
		m.AddLogMessage("INFO", "Crawling "+msg.URL)
		return m, nil

	case PhaseMsg:
		m.SetPhase(msg.ID, msg.Phase)
		return m, nil

	case ScrollMsg:
		m.UpdateScroll(msg.ID, msg.State)
		return m, nil

	case ImagesFoundMsg:
		m.SetFound(msg.ID, msg.Count)
		return m, nil

	case ImageDoneMsg:
		m.ImageDone(msg.ID, msg.Success, msg.Size)
		return m, nil

	case TaskDoneMsg:
		m.CompleteTask(msg.Completion)
		return m, nil

	case BatchDoneMsg:
		m.batchDone = true
		m.AddLogMessage("INFO", "Batch finished, press q to exit")
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
