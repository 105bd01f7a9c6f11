package crawler

import (
	"galleryzip/internal/downloader"
	"galleryzip/pkg/convergence"
)

// Phase names a step of a task
type Phase string

const (
	PhaseNavigate Phase = "navigate"
	PhaseConverge Phase = "converge"
	PhaseExtract  Phase = "extract"
	PhaseDownload Phase = "download"
	PhaseArchive  Phase = "archive"
)

// Observer receives progress from a running crawler. Calls for one task
// arrive in phase order and never concurrently; ImageDone follows download
// completion order.
type Observer interface {
	TaskStarted(task Task)
	PhaseStarted(taskID string, phase Phase)
	ScrollTick(taskID string, state convergence.State)
	ImagesFound(taskID string, count int)
	ImageDone(taskID string, result downloader.Result)
	TaskCompleted(c Completion)
}

// NopObserver ignores everything
type NopObserver struct{}

func (NopObserver) TaskStarted(Task)                     {}
func (NopObserver) PhaseStarted(string, Phase)           {}
func (NopObserver) ScrollTick(string, convergence.State) {}
func (NopObserver) ImagesFound(string, int)              {}
func (NopObserver) ImageDone(string, downloader.Result)  {}
func (NopObserver) TaskCompleted(Completion)             {}

// Observers fans out to several observers in order
type Observers []Observer

func (o Observers) TaskStarted(t Task) {
	for _, x := range o {
		x.TaskStarted(t)
	}
}

func (o Observers) PhaseStarted(id string, p Phase) {
	for _, x := range o {
		x.PhaseStarted(id, p)
	}
}

func (o Observers) ScrollTick(id string, s convergence.State) {
	for _, x := range o {
		x.ScrollTick(id, s)
	}
}

func (o Observers) ImagesFound(id string, n int) {
	for _, x := range o {
		x.ImagesFound(id, n)
	}
}

func (o Observers) ImageDone(id string, r downloader.Result) {
	for _, x := range o {
		x.ImageDone(id, r)
	}
}

func (o Observers) TaskCompleted(c Completion) {
	for _, x := range o {
		x.TaskCompleted(c)
	}
}
