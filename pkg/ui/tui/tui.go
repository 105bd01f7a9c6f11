package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"galleryzip/internal/downloader"
	"galleryzip/pkg/convergence"
	"galleryzip/pkg/crawler"
)

// TUI is a full-screen dashboard that follows a running batch. It
// implements crawler.Observer.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a TUI. Options are passed to the bubbletea program.
func NewTUI(opts ...tea.ProgramOption) *TUI {
	model := NewModel()
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Start runs the program until the user quits or Stop is called
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop quits the program
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the program
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// BatchDone tells the dashboard that no more tasks will run
func (t *TUI) BatchDone() {
	t.Send(BatchDoneMsg{})
}

func (t *TUI) TaskStarted(task crawler.Task) {
	t.Send(TaskStartMsg{ID: task.ID, URL: task.URL})
}

func (t *TUI) PhaseStarted(id string, p crawler.Phase) {
	t.Send(PhaseMsg{ID: id, Phase: p})
}

func (t *TUI) ScrollTick(id string, s convergence.State) {
	t.Send(ScrollMsg{ID: id, State: s})
}

func (t *TUI) ImagesFound(id string, n int) {
	t.Send(ImagesFoundMsg{ID: id, Count: n})
}

func (t *TUI) ImageDone(id string, r downloader.Result) {
	t.Send(ImageDoneMsg{ID: id, Success: r.Success, Size: r.Size})
}

func (t *TUI) TaskCompleted(c crawler.Completion) {
	t.Send(TaskDoneMsg{Completion: c})
}

// Log sends a log line to the dashboard
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}
