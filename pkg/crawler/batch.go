package crawler

import (
	"context"

	"galleryzip/pkg/checkpoint"
	errs "galleryzip/pkg/errors"
)

// BatchOption customizes RunBatch
type BatchOption func(*batchRun)

type batchRun struct {
	checkpoint *checkpoint.Manager
}

// WithCheckpoint records finished tasks in m and skips tasks that a previous
// run already completed. The checkpoint is deleted once every task succeeded.
func WithCheckpoint(m *checkpoint.Manager) BatchOption {
	return func(b *batchRun) { b.checkpoint = m }
}

// RunBatch runs tasks one after another. onComplete, if set, receives every
// completion as soon as its task ends; the full list is also returned in
// task order. Cancelling ctx fails the current and all remaining tasks.
func (c *Crawler) RunBatch(ctx context.Context, tasks []Task, onComplete func(Completion), opts ...BatchOption) []Completion {
	var b batchRun
	for _, opt := range opts {
		opt(&b)
	}

	var cp *checkpoint.Checkpoint
	if b.checkpoint != nil {
		var err error
		cp, err = b.checkpoint.LoadOrCreate(checkpoint.BatchKey(URLs(tasks)))
		if err != nil {
			c.logger.WithError(err).Warn("Checkpoint unavailable, running without resume")
			b.checkpoint = nil
		}
	}

	emit := func(comp Completion) {
		if onComplete != nil {
			onComplete(comp)
		}
	}

	completions := make([]Completion, 0, len(tasks))
	allDone := true
	for _, task := range tasks {
		task = task.withID()

		if cp != nil && cp.IsDone(task.URL) {
			rec := cp.Tasks[task.URL]
			comp := Completion{
				TaskID:  task.ID,
				URL:     task.URL,
				Status:  StatusSkipped,
				Archive: rec.Archive,
				Images:  rec.Images,
			}
			c.logger.InfoWithFields("Task already completed, skipping", map[string]interface{}{
				"url":     task.URL,
				"archive": rec.Archive,
			})
			c.observer.TaskCompleted(comp)
			completions = append(completions, comp)
			emit(comp)
			continue
		}

		var comp Completion
		if err := ctx.Err(); err != nil {
			comp = Completion{
				TaskID: task.ID,
				URL:    task.URL,
				Status: StatusFailed,
				Error:  errs.Wrap(errs.ErrorTypeUnknown, "batch cancelled", err).Error(),
			}
			c.observer.TaskCompleted(comp)
		} else {
			comp = c.Crawl(ctx, task)
		}

		if !comp.Succeeded() {
			allDone = false
		}
		if b.checkpoint != nil {
			rec := checkpoint.TaskRecord{
				Status:  string(comp.Status),
				Archive: comp.Archive,
				Images:  comp.Images,
				Error:   comp.Error,
			}
			if err := b.checkpoint.RecordTask(cp, task.URL, rec); err != nil {
				c.logger.WithError(err).Warn("Failed to update checkpoint")
			}
		}
		completions = append(completions, comp)
		emit(comp)
	}

	if b.checkpoint != nil && allDone {
		if err := b.checkpoint.Delete(); err != nil {
			c.logger.WithError(err).Warn("Failed to remove finished checkpoint")
		}
	}
	return completions
}
