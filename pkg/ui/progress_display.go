package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"galleryzip/internal/downloader"
	"galleryzip/pkg/convergence"
	"galleryzip/pkg/crawler"
)

// ProgressDisplay prints a compact line-based view of a running batch. It
// implements crawler.Observer.
type ProgressDisplay struct {
	mu  sync.Mutex
	out io.Writer

	url       string
	phase     crawler.Phase
	found     int
	done      int
	failed    int
	bytes     int64
	taskStart time.Time
	inline    bool

	// batch totals
	start     time.Time
	succeeded int
	skipped   int
	errored   int
	images    int
	total     int64

	isDebug bool
}

// NewProgressDisplay creates a progress display writing to the terminal output
func NewProgressDisplay(debug bool) *ProgressDisplay {
	return NewProgressDisplayTo(writer(), debug)
}

// NewProgressDisplayTo creates a progress display writing to w
func NewProgressDisplayTo(w io.Writer, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:     w,
		start:   time.Now(),
		isDebug: debug,
	}
}

func (p *ProgressDisplay) TaskStarted(task crawler.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.url = task.URL
	p.found, p.done, p.failed, p.bytes = 0, 0, 0, 0
	p.taskStart = time.Now()
	fmt.Fprintf(p.out, "%s %s\n", Magenta("→"), Cyan(task.URL))
}

func (p *ProgressDisplay) PhaseStarted(_ string, phase crawler.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	p.phase = phase
	if p.isDebug {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("•"), phase)
	}
}

func (p *ProgressDisplay) ScrollTick(_ string, s convergence.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("  scrolling %s • %d/%d px • %d images (%d loaded) • %s",
		bar(ratio(s.TotalScrolled, s.LastDocumentHeight)),
		s.TotalScrolled,
		s.LastDocumentHeight,
		s.MatchedCount,
		s.LoadedCount,
		s.Phase,
	)
	if s.LastError != nil {
		line += " • " + Yellow(fmt.Sprintf("probe failed x%d", s.ConsecutiveFailures))
	}
	p.printInline(line)
}

func (p *ProgressDisplay) ImagesFound(_ string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	p.found = n
	fmt.Fprintf(p.out, "  %s %d gallery images\n", Dim("•"), n)
}

func (p *ProgressDisplay) ImageDone(_ string, r downloader.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Success {
		p.done++
		p.bytes += r.Size
	} else {
		p.failed++
		if p.isDebug {
			p.endLine()
			fmt.Fprintf(p.out, "  %s %s: %v\n", Red("✗"), r.Job.URL, r.Error)
		}
	}

	line := fmt.Sprintf("  downloading %s %d/%d • %s",
		bar(ratio(p.done+p.failed, p.found)),
		p.done+p.failed,
		p.found,
		formatBytes(p.bytes),
	)
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}
	p.printInline(line)
}

func (p *ProgressDisplay) TaskCompleted(c crawler.Completion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	switch c.Status {
	case crawler.StatusSuccess:
		p.succeeded++
		p.images += c.Images
		p.total += p.bytes
		fmt.Fprintf(p.out, "%s %s • %d images", Green("✓"), c.Archive, c.Images)
		if c.Failed > 0 {
			fmt.Fprintf(p.out, " • %s", Yellow(fmt.Sprintf("%d skipped", c.Failed)))
		}
		fmt.Fprintf(p.out, " • %s\n", formatDuration(c.Elapsed))
	case crawler.StatusSkipped:
		p.skipped++
		fmt.Fprintf(p.out, "%s %s already archived\n", Dim("="), c.URL)
	default:
		p.errored++
		fmt.Fprintf(p.out, "%s %s: %s\n", Red("✗"), c.URL, c.Error)
	}
}

// Complete prints the batch summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	elapsed := time.Since(p.start)
	fmt.Fprintf(p.out, "\n%s %d archived, %d failed",
		Green("Done:"), p.succeeded, p.errored)
	if p.skipped > 0 {
		fmt.Fprintf(p.out, ", %d skipped", p.skipped)
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s %d images, %s in %s\n",
		Dim("•"), p.images, formatBytes(p.total), formatDuration(elapsed))
}

// printInline rewrites the current status line
func (p *ProgressDisplay) printInline(line string) {
	if p.isDebug {
		return
	}
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
	p.inline = true
}

func (p *ProgressDisplay) endLine() {
	if p.inline {
		fmt.Fprintln(p.out)
		p.inline = false
	}
}

func ratio(a, b int) float64 {
	if b <= 0 {
		return 0
	}
	r := float64(a) / float64(b)
	if r > 1 {
		return 1
	}
	return r
}

func bar(progress float64) string {
	const width = 20
	filled := int(progress * width)
	return "[" + strings.Repeat("━", filled) + strings.Repeat("─", width-filled) + "]"
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func formatBytes(bytes int64) string {
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
