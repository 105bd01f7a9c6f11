// Package browser drives a headless Chrome session over the DevTools
// protocol. A Browser owns one Chrome process; each Page is a tab that is
// owned by exactly one crawl task.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"galleryzip/pkg/config"
	"galleryzip/pkg/logger"
)

// Browser is a running Chrome instance
type Browser struct {
	cfg    config.BrowserConfig
	logger logger.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Launch starts Chrome. The process lives until Close is called or ctx is done.
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Browser, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Debug(fmt.Sprintf("chromedp: "+format, args...))
		}),
	)

	// the first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	logger.LogComponentStart(log, "browser", map[string]interface{}{
		"headless": cfg.Headless,
		"viewport": fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight),
	})

	return &Browser{
		cfg:           cfg,
		logger:        log,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a new tab with request filtering and console logging enabled
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	p := &Page{
		ctx:     tabCtx,
		cancel:  tabCancel,
		cfg:     b.cfg,
		logger:  b.logger,
		allowed: allowedTypes(b.cfg.AllowedResourceTypes),
	}
	if err := p.init(ctx); err != nil {
		tabCancel()
		return nil, err
	}
	return p, nil
}

// Close shuts the browser down
func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	logger.LogComponentStop(b.logger, "browser", "closed")
	return nil
}
