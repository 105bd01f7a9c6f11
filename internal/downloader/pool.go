package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"galleryzip/pkg/logger"
	"galleryzip/pkg/ratelimit"
)

// Job is a single image to download
type Job struct {
	URL      string
	Index    int
	FileName string
	Referer  string
}

// CacheName is the file name the image is cached under. The index prefix
// keeps duplicate base names apart.
func (j Job) CacheName() string {
	return fmt.Sprintf("%04d_%s", j.Index, j.FileName)
}

// Result is the outcome of a job
type Result struct {
	Job      Job
	Success  bool
	Cached   bool
	Error    error
	Duration time.Duration
	Size     int64
}

// ImageDownloader fetches image bytes
type ImageDownloader interface {
	DownloadImage(ctx context.Context, url, referer string) ([]byte, error)
}

// ImageStorage caches downloaded images
type ImageStorage interface {
	IsCached(name string) bool
	Save(r io.Reader, name string) (int64, error)
	Size(name string) int64
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      ImageDownloader
	storage     ImageStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose workers stop when ctx is cancelled
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client ImageDownloader,
	storage ImageStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for in-flight jobs and closes Results.
// It must be called exactly once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel. It is closed by Stop.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// DownloadAll runs jobs through a fresh pool and returns one result per job,
// ordered by index. onResult, if set, sees each result as it completes.
// Individual failures are reported in the results; the error is only set
// when ctx was cancelled before every job was submitted.
func DownloadAll(
	ctx context.Context,
	jobs []Job,
	numWorkers int,
	client ImageDownloader,
	storage ImageStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
	onResult func(Result),
) ([]Result, error) {
	wp := NewWorkerPool(ctx, numWorkers, client, storage, rateLimiter, log)
	wp.Start()

	results := make([]Result, 0, len(jobs))
	var g errgroup.Group
	g.Go(func() error {
		defer wp.Stop()
		for _, job := range jobs {
			if err := wp.Submit(job); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for r := range wp.Results() {
			results = append(results, r)
			if onResult != nil {
				onResult(r)
			}
		}
		return nil
	})
	err := g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Job.Index < results[j].Job.Index })
	return results, err
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result Result
		if err := wp.ctx.Err(); err != nil {
			result = Result{Job: job, Error: fmt.Errorf("cancelled: %w", err)}
		} else {
			result = wp.processJob(job, id)
		}

		// every submitted job yields exactly one result
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}
	name := job.CacheName()

	if wp.storage.IsCached(name) {
		wp.logger.DebugWithFields("Image already cached", map[string]interface{}{
			"worker_id": workerID,
			"file":      name,
		})
		result.Success = true
		result.Cached = true
		result.Size = wp.storage.Size(name)
		result.Duration = time.Since(start)
		return result
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = fmt.Errorf("rate limiter: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	data, err := wp.client.DownloadImage(wp.ctx, job.URL, job.Referer)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, job.FileName, job.URL, 0, result.Duration, result.Error)
		return result
	}

	size, err := wp.storage.Save(bytes.NewReader(data), name)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, job.FileName, job.URL, int64(len(data)), result.Duration, result.Error)
		return result
	}

	result.Success = true
	result.Size = size
	result.Duration = time.Since(start)
	logger.LogDownload(wp.logger, job.FileName, job.URL, size, result.Duration, nil)
	return result
}
