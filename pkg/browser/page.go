package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"galleryzip/pkg/config"
	errs "galleryzip/pkg/errors"
	"galleryzip/pkg/gallery"
	"galleryzip/pkg/logger"
)

// Page is one browser tab
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.BrowserConfig
	logger  logger.Logger
	allowed map[network.ResourceType]bool
}

func allowedTypes(names []string) map[network.ResourceType]bool {
	if len(names) == 0 {
		return nil
	}
	m := make(map[network.ResourceType]bool, len(names))
	for _, n := range names {
		m[network.ResourceType(n)] = true
	}
	return m
}

// Allowed reports whether requests of the given resource type may proceed.
// A nil allow-list lets everything through.
func Allowed(allowed map[network.ResourceType]bool, t network.ResourceType) bool {
	return allowed == nil || allowed[t]
}

func (p *Page) init(ctx context.Context) error {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go p.handlePaused(ev)
		case *cdpruntime.EventConsoleAPICalled:
			p.logger.DebugWithFields("Page console", map[string]interface{}{
				"type": string(ev.Type),
				"text": consoleText(ev.Args),
			})
		case *cdpruntime.EventExceptionThrown:
			p.logger.WarnWithFields("Page exception", map[string]interface{}{
				"text": exceptionText(ev.ExceptionDetails),
			})
		}
	})

	// The first Run creates the tab, and the tab lives as long as the context
	// of that call, so it must be the tab context itself.
	if err := chromedp.Run(p.ctx); err != nil {
		return errs.Wrap(errs.ErrorTypeBrowser, "failed to open tab", err)
	}

	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(p.cfg.ViewportWidth), int64(p.cfg.ViewportHeight)),
	}
	if p.allowed != nil {
		actions = append(actions, fetch.Enable())
	}
	if err := p.run(ctx, actions...); err != nil {
		return errs.Wrap(errs.ErrorTypeBrowser, "failed to prepare tab", err)
	}
	return nil
}

// handlePaused continues or aborts an intercepted request. A request that is
// neither continued nor failed hangs the page, so errors fall back to failing.
func (p *Page) handlePaused(ev *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(p.ctx, 2*time.Second)
	defer cancel()
	c := chromedp.FromContext(cmdCtx)
	if c == nil || c.Target == nil {
		return
	}
	exec := cdp.WithExecutor(cmdCtx, c.Target)

	if !Allowed(p.allowed, ev.ResourceType) {
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(exec); err != nil {
			p.logger.DebugWithFields("Failed to abort request", map[string]interface{}{
				"url":   ev.Request.URL,
				"error": err.Error(),
			})
		}
		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(exec); err != nil {
		p.logger.DebugWithFields("Failed to continue request", map[string]interface{}{
			"url":   ev.Request.URL,
			"error": err.Error(),
		})
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(exec)
	}
}

// run executes actions on the tab, bounded by both the tab's lifetime and ctx
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url. Hitting the navigation timeout is logged and tolerated
// since the page is usually usable by then; other failures are returned.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}

	err := p.run(navCtx, chromedp.Navigate(url))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || navCtx.Err() != nil:
		p.logger.WarnWithFields("Navigation timed out, continuing", map[string]interface{}{
			"url":     url,
			"timeout": p.cfg.NavigationTimeout,
		})
		return nil
	default:
		return errs.Wrap(errs.ErrorTypeNavigation, "navigation failed", err)
	}
}

// Title returns the document title
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", errs.Wrap(errs.ErrorTypeBrowser, "failed to read title", err)
	}
	return title, nil
}

// WaitVisible waits up to timeout for selector to become visible
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// ExpectedCount reads the gallery counter element. Zero means unknown.
func (p *Page) ExpectedCount(ctx context.Context, counterSelector string) (int, error) {
	if counterSelector == "" {
		return 0, nil
	}
	var text string
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.textContent : ""; })()`, jsString(counterSelector))
	if err := p.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeProbe, "failed to read counter", err)
	}
	return gallery.ParseCounter(text), nil
}

// DocumentHeight returns the scrollable height of the document
func (p *Page) DocumentHeight(ctx context.Context) (int, error) {
	var h int
	expr := `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`
	if err := p.run(ctx, chromedp.Evaluate(expr, &h)); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeProbe, "failed to read document height", err)
	}
	return h, nil
}

// ScrollOffset returns the vertical scroll position of the window
func (p *Page) ScrollOffset(ctx context.Context) (int, error) {
	var y float64
	if err := p.run(ctx, chromedp.Evaluate(`window.scrollY`, &y)); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeProbe, "failed to read scroll offset", err)
	}
	return int(y), nil
}

// ScrollBy scrolls the window down by px
func (p *Page) ScrollBy(ctx context.Context, px int) error {
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, px), nil)); err != nil {
		return errs.Wrap(errs.ErrorTypeProbe, "failed to scroll", err)
	}
	return nil
}

// CountMatches counts the elements matching selector
func (p *Page) CountMatches(ctx context.Context, selector string) (int, error) {
	var n int
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeProbe, "failed to count matches", err)
	}
	return n, nil
}

// CountLoaded counts the elements matching selector whose image has been
// decoded
func (p *Page) CountLoaded(ctx context.Context, selector string) (int, error) {
	var n int
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).filter((el) => el.complete && el.naturalWidth > 0).length`, jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeProbe, "failed to count loaded images", err)
	}
	return n, nil
}

const snapshotScript = `(() => {
  const abs = (v) => { if (!v) return ""; try { return new URL(v, document.baseURI).href; } catch (e) { return v; } };
  return Array.from(document.querySelectorAll(%s)).map((el) => ({
    src: el.getAttribute("src") ? el.src : "",
    dataSrc: abs(el.getAttribute("data-src")),
    dataOriginal: abs(el.getAttribute("data-original")),
    dataLazySrc: abs(el.getAttribute("data-lazy-src")),
  }));
})()`

// Snapshot reads the source attributes of every element matching selector,
// resolved to absolute URLs, in document order
func (p *Page) Snapshot(ctx context.Context, selector string) ([]gallery.Element, error) {
	var elements []gallery.Element
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(snapshotScript, jsString(selector)), &elements)); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeBrowser, "failed to snapshot images", err)
	}
	return elements, nil
}

// Close closes the tab
func (p *Page) Close() error {
	p.cancel()
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func consoleText(args []*cdpruntime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case len(a.Value) > 0:
			parts = append(parts, strings.Trim(string(a.Value), `"`))
		case a.Description != "":
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(d *cdpruntime.ExceptionDetails) string {
	if d == nil {
		return ""
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
