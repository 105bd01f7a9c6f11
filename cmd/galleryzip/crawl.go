package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"galleryzip/pkg/browser"
	"galleryzip/pkg/checkpoint"
	"galleryzip/pkg/config"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/fetch"
	"galleryzip/pkg/logger"
	"galleryzip/pkg/static"
	"galleryzip/pkg/ui"
	"galleryzip/pkg/ui/tui"
)

var (
	// Crawl command flags
	selector      string
	tasksFile     string
	staticMode    bool
	resumeBatch   bool
	forceRestart  bool
	expected      int
	filterIndex   int
	outputDir     string
	workers       int
	scrollStep    int
	maxScrollTime time.Duration
	useTUI        bool
	headful       bool
	chromePath    string
	keepCache     bool
	notify        bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [url...]",
	Short: "Archive one or more galleries",
	Long: `Archive the galleries at the given URLs, one after another.

Each page is scrolled until the expected number of images is present, the
page stops growing or the scroll deadline passes. The images that share the
gallery's URL prefix are downloaded in parallel and packed into
<output>/<title>_<unix millis>.zip. Failed downloads are left out of the
archive; a task fails only when no image could be archived.`,
	Example: `  # Archive a single gallery
  galleryzip crawl https://example.com/gallery/123

  # Several galleries from a task file, with the dashboard
  galleryzip crawl --tasks galleries.yaml --tui

  # Resume an interrupted batch
  galleryzip crawl --tasks galleries.yaml --resume

  # Plain HTML pages, no browser
  galleryzip crawl --static --selector ".photos img" https://example.com/album`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	f := crawlCmd.Flags()
	f.StringVarP(&selector, "selector", "s", "", "CSS selector of the gallery images")
	f.StringVarP(&tasksFile, "tasks", "t", "", "YAML file with tasks to run")
	f.BoolVar(&staticMode, "static", false, "fetch pages over HTTP without a browser")
	f.BoolVar(&resumeBatch, "resume", false, "skip tasks a previous run of the same batch completed")
	f.BoolVar(&forceRestart, "force-restart", false, "discard the checkpoint of a previous run")
	f.IntVarP(&expected, "expected", "e", 0, "stop scrolling once this many images are present")
	f.IntVar(&filterIndex, "filter-index", 0, "number of leading path segments that identify a gallery")
	f.StringVarP(&outputDir, "output", "o", "", "directory for the archives")
	f.IntVarP(&workers, "workers", "w", 0, "number of parallel downloads")
	f.IntVar(&scrollStep, "scroll-step", 0, "pixels scrolled per tick")
	f.DurationVar(&maxScrollTime, "max-scroll-time", 0, "scroll deadline per page")
	f.BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	f.BoolVar(&headful, "headful", false, "show the browser window")
	f.StringVar(&chromePath, "chrome", "", "path to the Chrome executable")
	f.BoolVar(&keepCache, "keep-cache", false, "keep downloaded images after archiving")
	f.BoolVar(&notify, "notify", false, "send a desktop notification per finished task")
}

func crawlFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}
	set("selector", selector)
	set("expected", expected)
	set("filter-index", filterIndex)
	set("output", outputDir)
	set("workers", workers)
	set("scroll-step", scrollStep)
	set("max-scroll-time", maxScrollTime)
	set("static", staticMode)
	set("headful", headful)
	set("chrome", chromePath)
	set("keep-cache", keepCache)
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	tasks, err := collectTasks(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(crawlFlags(cmd))
	if err != nil {
		return err
	}
	if notify {
		cfg.Notifications.Enabled = true
	}
	if useTUI && cfg.Logging.File == "" {
		// the dashboard owns the terminal
		logger.SetLogger(logger.NewNopLogger())
	}
	log := logger.GetLogger().WithField("command", "crawl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	open, closeBrowser, err := pageOpener(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBrowser()

	var batchOpts []crawler.BatchOption
	if resumeBatch || forceRestart {
		mgr, err := checkpoint.NewManager(checkpoint.BatchKey(crawler.URLs(tasks)), log)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint: %w", err)
		}
		if forceRestart {
			if err := mgr.Delete(); err != nil {
				return fmt.Errorf("failed to discard checkpoint: %w", err)
			}
		}
		if cp, err := mgr.Load(); err == nil && cp != nil {
			ui.PrintInfo("Resuming batch", fmt.Sprintf("%d of %d tasks already recorded", len(cp.Tasks), len(tasks)))
		}
		batchOpts = append(batchOpts, crawler.WithCheckpoint(mgr))
	}

	var observers crawler.Observers
	var display *ui.ProgressDisplay
	var dash *tui.TUI
	switch {
	case useTUI:
		dash = tui.NewTUI()
		observers = append(observers, dash)
	case !ui.IsQuietMode():
		display = ui.NewProgressDisplay(verbose)
		observers = append(observers, display)
	}
	if n := ui.NewCompletionNotifier(ui.NewNotifier(), cfg.Notifications); n != nil {
		observers = append(observers, n)
	}

	c := crawler.New(cfg, open, fetch.FromConfig(cfg, log),
		crawler.WithLogger(log),
		crawler.WithObserver(observers),
	)

	var comps []crawler.Completion
	if dash != nil {
		errc := make(chan error, 1)
		go func() {
			errc <- dash.Start()
			// quitting the dashboard stops the batch
			cancel()
		}()
		comps = c.RunBatch(ctx, tasks, nil, batchOpts...)
		dash.BatchDone()
		if err := <-errc; err != nil {
			return fmt.Errorf("terminal UI: %w", err)
		}
	} else {
		comps = c.RunBatch(ctx, tasks, nil, batchOpts...)
	}
	if display != nil {
		display.Complete()
	}

	failed := 0
	for _, comp := range comps {
		if comp.Status == crawler.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(comps))
	}
	return nil
}

// collectTasks merges the task file with URLs given as arguments
func collectTasks(args []string) ([]crawler.Task, error) {
	var tasks []crawler.Task
	if tasksFile != "" {
		loaded, err := crawler.LoadTasks(tasksFile)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, loaded...)
	}
	tasks = append(tasks, crawler.TasksFromURLs(args, "")...)
	if len(tasks) == 0 {
		return nil, errors.New("no gallery URLs given; pass URLs or --tasks")
	}
	return tasks, nil
}

// pageOpener returns how tasks get their page: a tab in a shared Chrome, or a
// static HTML fetch. The returned func releases the browser.
func pageOpener(ctx context.Context, cfg *config.Config, log logger.Logger) (crawler.PageOpener, func(), error) {
	if cfg.Crawl.Static {
		client := fetch.FromConfig(cfg, log)
		open := func(context.Context) (crawler.Page, error) {
			return static.NewPage(client), nil
		}
		return open, func() {}, nil
	}

	b, err := browser.Launch(ctx, cfg.Browser, log)
	if err != nil {
		return nil, nil, err
	}
	open := func(ctx context.Context) (crawler.Page, error) {
		p, err := b.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	closeBrowser := func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}
	return open, closeBrowser, nil
}
