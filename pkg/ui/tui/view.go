package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"galleryzip/pkg/crawler"
)

const logo = `
╔════════════════════════════════════════════════════╗
║  ┏━╸┏━┓╻  ╻  ┏━╸┏━┓╻ ╻   ┏━┓╻┏━┓                    ║
║  ┃╺┓┣━┫┃  ┃  ┣╸ ┣┳┛┗┳┛ ╺━┏┛┃┣━┛                    ║
║  ┗━┛╹ ╹┗━╸┗━╸┗━╸╹┗╸ ╹    ┗━╸╹╹    GALLERY ARCHIVER  ║
╚════════════════════════════════════════════════════╝`

// View renders the dashboard
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))

	half := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(half),
		m.renderCurrentPanel(half),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTasksPanel(half),
		m.renderLogsPanel(half),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to quit"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" BATCH ")

	lines := []string{
		stat("Elapsed:", formatDuration(time.Since(m.startTime))),
		stat("Tasks:", fmt.Sprintf("%d/%d done", m.succeeded+m.failed, len(m.taskOrder))),
		stat("Archived:", fmt.Sprintf("%d images, %s", m.images, FormatBytes(m.totalBytes))),
	}
	if m.failed > 0 {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("%d tasks failed", m.failed)))
	}
	if m.batchDone {
		lines = append(lines, successStyle.Render("Batch finished"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

func (m Model) renderCurrentPanel(width int) string {
	title := titleStyle.Render(" CURRENT TASK ")

	t := m.tasks[m.current]
	if t == nil {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, logMessageStyle.Render("Waiting for tasks")),
		)
	}

	bar := m.progress
	bar.Width = max(10, width-8)

	lines := []string{
		queueItemActiveStyle.Render(truncate(t.URL, width-8)),
		fmt.Sprintf("%s %s %s", m.spinner.View(), statsLabelStyle.Render("Phase:"), statsValueStyle.Render(string(t.Phase))),
	}

	switch t.Phase {
	case crawler.PhaseNavigate:
	case crawler.PhaseConverge:
		s := t.Scroll
		lines = append(lines,
			fmt.Sprintf("%s %s", statsLabelStyle.Render("Loop:"), phaseStyle(s.Phase.String()).Render(s.Phase.String())),
			stat("Scrolled:", fmt.Sprintf("%d / %d px", s.TotalScrolled, s.LastDocumentHeight)),
			stat("Matched:", fmt.Sprintf("%d images, %d loaded", s.MatchedCount, s.LoadedCount)),
			stat("Time:", formatDuration(s.Elapsed)),
			bar.ViewAs(t.ScrollProgress()),
		)
	default:
		lines = append(lines,
			stat("Images:", fmt.Sprintf("%d ok, %d failed of %d", t.Done, t.Failed, t.Found)),
			stat("Size:", FormatBytes(t.Bytes)),
			bar.ViewAs(t.DownloadProgress()),
		)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

func (m Model) renderTasksPanel(width int) string {
	title := titleStyle.Render(" TASKS ")

	var items []string
	start := max(0, len(m.taskOrder)-8)
	if start > 0 {
		items = append(items, logMessageStyle.Render(fmt.Sprintf("  ... %d earlier", start)))
	}
	for _, id := range m.taskOrder[start:] {
		t := m.tasks[id]
		label := truncate(t.URL, width-10)
		switch t.Status {
		case crawler.StatusSuccess:
			items = append(items, successStyle.Render("✓ ")+queueItemCompletedStyle.Render(label))
		case crawler.StatusSkipped:
			items = append(items, queueItemCompletedStyle.Render("= "+label))
		case crawler.StatusFailed:
			items = append(items, errorStyle.Render("✗ ")+queueItemStyle.Render(label))
		default:
			items = append(items, warningStyle.Render("» ")+queueItemActiveStyle.Render(label))
		}
	}
	if len(items) == 0 {
		items = append(items, logMessageStyle.Render("No tasks yet"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := max(0, len(m.logMessages)-10)
	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(truncate(log.Message, width-25))))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = logMessageStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Height(max(5, m.height-30)).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit
    ctrl+l   - Clear log
    ?        - Toggle this help

  Tasks:
    ` + successStyle.Render("✓") + `        - Archived
    ` + errorStyle.Render("✗") + `        - Failed
    =        - Skipped, finished in an earlier run
    ` + warningStyle.Render("»") + `        - Running
`
	return panelStyle.Width(m.width).Render(help)
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
