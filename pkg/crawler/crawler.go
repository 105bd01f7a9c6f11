package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"galleryzip/internal/downloader"
	"galleryzip/pkg/archive"
	"galleryzip/pkg/checkpoint"
	"galleryzip/pkg/config"
	"galleryzip/pkg/convergence"
	errs "galleryzip/pkg/errors"
	"galleryzip/pkg/gallery"
	"galleryzip/pkg/logger"
	"galleryzip/pkg/metadata"
	"galleryzip/pkg/ratelimit"
	"galleryzip/pkg/storage"
)

// Page is a loaded document the crawler reads images from
type Page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	ExpectedCount(ctx context.Context, counterSelector string) (int, error)
	CountMatches(ctx context.Context, selector string) (int, error)
	Snapshot(ctx context.Context, selector string) ([]gallery.Element, error)
	Close() error
}

// Scroller is a page that can be scrolled to load lazy content. Pages that
// are not Scrollers skip the convergence phase.
type Scroller interface {
	DocumentHeight(ctx context.Context) (int, error)
	ScrollOffset(ctx context.Context) (int, error)
	ScrollBy(ctx context.Context, px int) error
	CountMatches(ctx context.Context, selector string) (int, error)
	CountLoaded(ctx context.Context, selector string) (int, error)
}

// PageOpener opens a fresh page for one task
type PageOpener func(ctx context.Context) (Page, error)

// pageProbe binds a scroller to the task's image selector
type pageProbe struct {
	page     Scroller
	selector string
}

func (p pageProbe) DocumentHeight(ctx context.Context) (int, error) {
	return p.page.DocumentHeight(ctx)
}

func (p pageProbe) ScrollOffset(ctx context.Context) (int, error) {
	return p.page.ScrollOffset(ctx)
}

func (p pageProbe) MatchedCount(ctx context.Context) (int, error) {
	return p.page.CountMatches(ctx, p.selector)
}

func (p pageProbe) LoadedCount(ctx context.Context) (int, error) {
	return p.page.CountLoaded(ctx, p.selector)
}

// Crawler runs tasks against pages from a PageOpener
type Crawler struct {
	cfg      *config.Config
	open     PageOpener
	client   downloader.ImageDownloader
	limiter  ratelimit.Limiter
	logger   logger.Logger
	observer Observer
	clock    convergence.Clock
	now      func() time.Time
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(c *Crawler) { c.observer = o }
}

// WithLimiter replaces the limiter built from the rate_limit section
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Crawler) { c.limiter = l }
}

// WithClock sets the clock used by the scroll loop and for archive names
func WithClock(clk convergence.Clock) Option {
	return func(c *Crawler) {
		c.clock = clk
		c.now = clk.Now
	}
}

// New creates a crawler. cfg is read but never modified.
func New(cfg *config.Config, open PageOpener, client downloader.ImageDownloader, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:      cfg,
		open:     open,
		client:   client,
		limiter:  ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		logger:   logger.GetLogger(),
		observer: NopObserver{},
		clock:    convergence.SystemClock{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// taskSettings is the per-task view of the configuration
type taskSettings struct {
	selector    string
	expected    int
	filterIndex int
}

func (c *Crawler) settingsFor(task Task) taskSettings {
	s := taskSettings{
		selector:    c.cfg.Crawl.Selector,
		expected:    c.cfg.Crawl.ExpectedCount,
		filterIndex: c.cfg.Filter.PathIndex,
	}
	if task.Selector != "" {
		s.selector = task.Selector
	}
	if task.ExpectedCount > 0 {
		s.expected = task.ExpectedCount
	}
	if task.FilterPathIndex != nil {
		s.filterIndex = *task.FilterPathIndex
	}
	return s
}

func (c *Crawler) loopConfig(expected int) convergence.Config {
	cc := c.cfg.Crawl
	return convergence.Config{
		PollInterval:     cc.PollInterval,
		ScrollStep:       cc.ScrollStep,
		MaxDuration:      cc.MaxScrollTime,
		SettleDelay:      cc.SettleDelay,
		ExpectedCount:    expected,
		MaxProbeFailures: cc.MaxProbeFailures,
		ProbeTimeout:     cc.ProbeTimeout,
	}
}

// taskRun carries the state of one Crawl call
type taskRun struct {
	task     Task
	settings taskSettings
	log      logger.Logger
	start    time.Time
	title    string
	outcome  convergence.Outcome
}

// Crawl runs one task to completion and returns its completion signal. It
// never panics on page or network failures; they become failed completions.
func (c *Crawler) Crawl(ctx context.Context, task Task) Completion {
	task = task.withID()
	run := &taskRun{
		task:     task,
		settings: c.settingsFor(task),
		log:      c.logger.WithFields(map[string]interface{}{"task_id": task.ID, "url": task.URL}),
		start:    c.now(),
	}
	c.observer.TaskStarted(task)

	comp := c.crawl(ctx, run)
	comp.Elapsed = c.now().Sub(run.start)

	var err error
	if comp.Error != "" {
		err = errors.New(comp.Error)
	}
	logger.LogTaskComplete(run.log, task.URL, string(comp.Status), comp.Archive, err)
	c.observer.TaskCompleted(comp)
	return comp
}

func (c *Crawler) crawl(ctx context.Context, run *taskRun) Completion {
	if err := run.task.Validate(); err != nil {
		return run.failed(errs.Wrap(errs.ErrorTypeParsing, "invalid task", err))
	}

	page, err := c.open(ctx)
	if err != nil {
		return run.failed(errs.Wrap(errs.ErrorTypeBrowser, "failed to open page", err))
	}
	closePage := sync.OnceFunc(func() {
		if err := page.Close(); err != nil {
			run.log.WithError(err).Debug("Failed to close page")
		}
	})
	defer closePage()

	if err := c.navigate(ctx, run, page); err != nil {
		return run.failed(err)
	}

	c.observer.PhaseStarted(run.task.ID, PhaseConverge)
	run.outcome = c.converge(ctx, run, page)
	if run.outcome.Reason == convergence.ReasonCancelled {
		return run.failed(errs.Wrap(errs.ErrorTypeBrowser, "cancelled while scrolling", ctx.Err()))
	}

	c.observer.PhaseStarted(run.task.ID, PhaseExtract)
	candidates, err := c.extract(ctx, run, page)
	if err != nil {
		return run.failed(err)
	}
	c.observer.ImagesFound(run.task.ID, len(candidates))
	if len(candidates) == 0 {
		return run.failed(errs.New(errs.ErrorTypeNoImages, "no images matched "+run.settings.selector))
	}

	// The page is no longer needed once the candidate list is fixed.
	closePage()

	c.observer.PhaseStarted(run.task.ID, PhaseDownload)
	store, results, err := c.download(ctx, run, candidates)
	if err != nil {
		return run.failed(err)
	}

	c.observer.PhaseStarted(run.task.ID, PhaseArchive)
	return c.archive(run, store, results)
}

func (c *Crawler) navigate(ctx context.Context, run *taskRun, page Page) error {
	c.observer.PhaseStarted(run.task.ID, PhaseNavigate)

	if err := page.Navigate(ctx, run.task.URL); err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrorTypeNavigation, "cancelled during navigation", ctx.Err())
		}
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to load page", err)
	}

	run.title = run.task.Title
	if run.title == "" {
		title, err := page.Title(ctx)
		if err != nil {
			run.log.WithError(err).Warn("Could not read page title")
		}
		run.title = title
	}

	if err := page.WaitVisible(ctx, run.settings.selector, c.cfg.Crawl.SelectorTimeout); err != nil {
		run.log.WarnWithFields("Images not visible yet, continuing", map[string]interface{}{
			"selector": run.settings.selector,
			"error":    err.Error(),
		})
	}

	if run.settings.expected == 0 && c.cfg.Crawl.CounterSelector != "" {
		n, err := page.ExpectedCount(ctx, c.cfg.Crawl.CounterSelector)
		switch {
		case err != nil:
			run.log.WithError(err).Debug("Could not read gallery counter")
		case n > 0:
			run.settings.expected = n
			run.log.InfoWithFields("Gallery counter found", map[string]interface{}{"expected": n})
		}
	}
	return nil
}

func (c *Crawler) converge(ctx context.Context, run *taskRun, page Page) convergence.Outcome {
	scroller, ok := page.(Scroller)
	if !ok {
		matched, _ := page.CountMatches(ctx, run.settings.selector)
		state := convergence.State{MatchedCount: matched, Phase: convergence.PhaseDone}
		reason := convergence.ReasonHeightExhausted
		if run.settings.expected > 0 && matched >= run.settings.expected {
			reason = convergence.ReasonReachedExpectedCount
		}
		return convergence.Outcome{Completed: true, Reason: reason, State: state}
	}

	lastPhase := convergence.PhasePolling
	outcome, err := convergence.Run(ctx, c.loopConfig(run.settings.expected),
		pageProbe{page: scroller, selector: run.settings.selector}, scroller,
		convergence.WithClock(c.clock),
		convergence.WithTickObserver(func(s convergence.State) {
			if s.Phase != lastPhase {
				run.log.DebugWithFields("Scroll phase changed", map[string]interface{}{
					"from": lastPhase.String(),
					"to":   s.Phase.String(),
				})
				lastPhase = s.Phase
			}
			if s.Ticks%50 == 0 || s.Phase != convergence.PhasePolling {
				logger.LogScrollTick(run.log, s.Phase.String(), s.TotalScrolled, s.LastDocumentHeight, s.MatchedCount, s.Elapsed)
			}
			c.observer.ScrollTick(run.task.ID, s)
		}),
	)
	if err != nil {
		// invalid loop configuration; extraction still sees whatever loaded
		run.log.WithError(err).Error("Scroll loop not started")
		return convergence.Outcome{Reason: convergence.ReasonTimedOut, State: convergence.State{Phase: convergence.PhaseTimedOut}}
	}

	fields := map[string]interface{}{
		"reason":   outcome.Reason.String(),
		"scrolled": outcome.State.TotalScrolled,
		"matched":  outcome.State.MatchedCount,
		"loaded":   outcome.State.LoadedCount,
		"elapsed":  outcome.State.Elapsed,
	}
	if outcome.Completed {
		run.log.InfoWithFields("Page converged", fields)
	} else {
		run.log.WarnWithFields("Page did not converge", fields)
	}
	return outcome
}

func (c *Crawler) extract(ctx context.Context, run *taskRun, page Page) ([]gallery.Candidate, error) {
	elements, err := page.Snapshot(ctx, run.settings.selector)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeBrowser, "failed to read images", err)
	}

	all := gallery.Candidates(elements)
	kept := gallery.Extract(all, run.settings.filterIndex)
	run.log.InfoWithFields("Images extracted", map[string]interface{}{
		"matched": len(all),
		"kept":    len(kept),
	})
	return kept, nil
}

func (c *Crawler) download(ctx context.Context, run *taskRun, candidates []gallery.Candidate) (*storage.Manager, []downloader.Result, error) {
	cacheDir := filepath.Join(c.cfg.Download.CacheDir, checkpoint.BatchKey([]string{run.task.URL}))
	store, err := storage.NewManager(cacheDir)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrorTypeArchive, "failed to prepare image cache", err)
	}
	if n := store.Count(); n > 0 {
		run.log.InfoWithFields("Reusing cached images", map[string]interface{}{"cached": n})
	}

	jobs := make([]downloader.Job, len(candidates))
	for i, cand := range candidates {
		jobs[i] = downloader.Job{
			URL:      cand.URL,
			Index:    cand.Index,
			FileName: gallery.FileName(cand),
			Referer:  run.task.URL,
		}
	}

	results, err := downloader.DownloadAll(ctx, jobs, c.cfg.Download.ConcurrentWorkers,
		c.client, store, c.limiter, run.log,
		func(r downloader.Result) { c.observer.ImageDone(run.task.ID, r) },
	)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrorTypeNetwork, "downloads cancelled", err)
	}
	return store, results, nil
}

func (c *Crawler) archive(run *taskRun, store *storage.Manager, results []downloader.Result) Completion {
	entries := make([]archive.Entry, 0, len(results))
	images := make([]metadata.ImageRecord, 0, len(results))
	for _, r := range results {
		rec := metadata.ImageRecord{
			Index:    r.Job.Index,
			URL:      r.Job.URL,
			FileName: r.Job.FileName,
			Size:     r.Size,
			Success:  r.Success,
		}
		if r.Error != nil {
			rec.Error = r.Error.Error()
		}
		images = append(images, rec)
		if r.Success {
			entries = append(entries, archive.Entry{
				Name:  r.Job.FileName,
				Index: r.Job.Index,
				Path:  store.Path(r.Job.CacheName()),
			})
		}
	}
	failed := len(results) - len(entries)

	if len(entries) == 0 {
		comp := run.failed(errs.New(errs.ErrorTypeArchive, fmt.Sprintf("all %d downloads failed", len(results))))
		comp.Failed = failed
		return comp
	}

	path := archive.Unique(filepath.Join(c.cfg.Output.Directory, archive.Name(run.title, c.now())))
	written, err := archive.Write(path, entries)
	if err != nil {
		comp := run.failed(errs.Wrap(errs.ErrorTypeArchive, "failed to write archive", err))
		comp.Failed = failed
		return comp
	}

	if c.cfg.Output.WriteManifest {
		m := &metadata.Manifest{
			TaskID:    run.task.ID,
			URL:       run.task.URL,
			Title:     run.title,
			Selector:  run.settings.selector,
			Archive:   filepath.Base(path),
			Mode:      c.mode(),
			CreatedAt: c.now(),
			Outcome: metadata.Outcome{
				Completed: run.outcome.Completed,
				Reason:    run.outcome.Reason.String(),
				Elapsed:   run.outcome.State.Elapsed,
				Scrolled:  run.outcome.State.TotalScrolled,
				Offset:    run.outcome.State.ScrollOffset,
				Matched:   run.outcome.State.MatchedCount,
				Loaded:    run.outcome.State.LoadedCount,
				Expected:  run.settings.expected,
			},
			Images: images,
		}
		if err := m.Save(path); err != nil {
			run.log.WithError(err).Warn("Failed to write manifest")
		}
	}

	if c.cfg.Download.ClearCache {
		if err := store.Clear(); err != nil {
			run.log.WithError(err).Warn("Failed to clear image cache")
		}
	}

	return Completion{
		TaskID:  run.task.ID,
		URL:     run.task.URL,
		Status:  StatusSuccess,
		Archive: path,
		Images:  written,
		Failed:  failed,
		Reason:  run.outcome.Reason.String(),
	}
}

func (c *Crawler) mode() string {
	if c.cfg.Crawl.Static {
		return "static"
	}
	return "browser"
}

func (r *taskRun) failed(err error) Completion {
	comp := Completion{
		TaskID: r.task.ID,
		URL:    r.task.URL,
		Status: StatusFailed,
		Error:  err.Error(),
	}
	if r.outcome.State.Phase.Terminal() {
		comp.Reason = r.outcome.Reason.String()
	}
	return comp
}
