package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"galleryzip/pkg/convergence"
	"galleryzip/pkg/crawler"
)

// TaskItem is the view state of one crawl task
type TaskItem struct {
	ID        string
	URL       string
	Phase     crawler.Phase
	Scroll    convergence.State
	Found     int
	Done      int
	Failed    int
	Bytes     int64
	Status    crawler.Status // empty while running
	Archive   string
	Error     string
	StartTime time.Time
}

// Finished reports whether the task has a completion
func (t *TaskItem) Finished() bool {
	return t.Status != ""
}

// Model is the bubbletea model. It is only touched from Update and View,
// which bubbletea runs on a single goroutine.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	tasks     map[string]*TaskItem
	taskOrder []string
	current   string

	// totals across the batch
	succeeded  int
	failed     int
	images     int
	totalBytes int64
	startTime  time.Time
	batchDone  bool

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// LogMessage is a line in the log panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates an empty model
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:        s,
		progress:       p,
		tasks:          make(map[string]*TaskItem),
		startTime:      time.Now(),
		maxLogMessages: 50,
	}
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) task(id string) *TaskItem {
	t, ok := m.tasks[id]
	if !ok {
		t = &TaskItem{ID: id, StartTime: time.Now()}
		m.tasks[id] = t
		m.taskOrder = append(m.taskOrder, id)
	}
	return t
}

// StartTask registers a task and makes it current
func (m *Model) StartTask(id, url string) {
	t := m.task(id)
	t.URL = url
	t.Phase = crawler.PhaseNavigate
	m.current = id
}

// SetPhase records the task's current phase
func (m *Model) SetPhase(id string, p crawler.Phase) {
	m.task(id).Phase = p
}

// UpdateScroll records the latest scroll loop state
func (m *Model) UpdateScroll(id string, s convergence.State) {
	m.task(id).Scroll = s
}

// SetFound records how many images passed the gallery filter
func (m *Model) SetFound(id string, n int) {
	m.task(id).Found = n
}

// ImageDone counts one finished download
func (m *Model) ImageDone(id string, ok bool, size int64) {
	t := m.task(id)
	if ok {
		t.Done++
		t.Bytes += size
		m.images++
		m.totalBytes += size
	} else {
		t.Failed++
	}
}

// CompleteTask records a completion
func (m *Model) CompleteTask(c crawler.Completion) {
	t := m.task(c.TaskID)
	if t.URL == "" {
		t.URL = c.URL
	}
	t.Status = c.Status
	t.Archive = c.Archive
	t.Error = c.Error
	switch c.Status {
	case crawler.StatusSuccess:
		m.succeeded++
		m.AddLogMessage("SUCCESS", fmt.Sprintf("%s: %d images -> %s", c.URL, c.Images, c.Archive))
	case crawler.StatusSkipped:
		m.AddLogMessage("INFO", fmt.Sprintf("%s: already done", c.URL))
	default:
		m.failed++
		m.AddLogMessage("ERROR", fmt.Sprintf("%s: %s", c.URL, c.Error))
	}
}

// AddLogMessage adds a log line, keeping the last maxLogMessages
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = neonRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Current returns the task shown in the detail panel
func (m *Model) Current() *TaskItem {
	return m.tasks[m.current]
}

// DownloadProgress is the finished share of the current task's downloads
func (t *TaskItem) DownloadProgress() float64 {
	if t.Found == 0 {
		return 0
	}
	p := float64(t.Done+t.Failed) / float64(t.Found)
	if p > 1 {
		p = 1
	}
	return p
}

// ScrollProgress is how far down the page the loop has scrolled
func (t *TaskItem) ScrollProgress() float64 {
	if t.Scroll.LastDocumentHeight <= 0 {
		return 0
	}
	p := float64(t.Scroll.TotalScrolled) / float64(t.Scroll.LastDocumentHeight)
	if p > 1 {
		p = 1
	}
	return p
}

// FormatBytes formats bytes to human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
