// Package fetch is the HTTP side of the crawler: it downloads image bytes and
// fetches raw page HTML for the static crawl mode.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"galleryzip/pkg/config"
	errs "galleryzip/pkg/errors"
	"galleryzip/pkg/logger"
	"galleryzip/pkg/retry"
)

// Options configures a Client
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxFileSize int64
	SendReferer bool
	Retry       retry.Config
}

// Client performs GET requests with browser-like headers, typed errors and retries
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     logger.Logger
	headers    map[string]string
}

// NewClient creates a new HTTP client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = log
	}

	headers := map[string]string{
		"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     log,
		headers:    headers,
	}
}

// FromConfig builds a client from the download and retry sections
func FromConfig(cfg *config.Config, log logger.Logger) *Client {
	return NewClient(Options{
		Timeout:     cfg.Download.Timeout,
		UserAgent:   cfg.Browser.UserAgent,
		MaxFileSize: cfg.Download.MaxFileSize,
		SendReferer: cfg.Download.SendReferer,
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff: retry.ExponentialBackoff{
				InitialDelay: cfg.Retry.InitialDelay,
				MaxDelay:     cfg.Retry.MaxDelay,
				Multiplier:   cfg.Retry.Multiplier,
				Jitter:       0.1,
			},
			RetryIf: retry.DefaultRetryIf,
		},
	}, log)
}

// get performs one request and maps transport failures and bad statuses to
// typed errors. The caller owns the response body on success.
func (c *Client) get(ctx context.Context, rawURL, referer, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "invalid request URL", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if referer != "" && c.opts.SendReferer {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.HTTP(resp.StatusCode, fmt.Sprintf("GET %s returned %s", rawURL, resp.Status))
	}
	return resp, nil
}

// DownloadImage fetches the bytes of one image, retrying transient failures
func (c *Client) DownloadImage(ctx context.Context, imageURL, referer string) ([]byte, error) {
	return retry.DoWithResult(ctx, c.opts.Retry, func(ctx context.Context) ([]byte, error) {
		resp, err := c.get(ctx, imageURL, referer, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
			return nil, errs.New(errs.ErrorTypeParsing, "expected an image, got "+ct)
		}
		if c.opts.MaxFileSize > 0 && resp.ContentLength > c.opts.MaxFileSize {
			return nil, errs.New(errs.ErrorTypeParsing, fmt.Sprintf("image exceeds %d bytes", c.opts.MaxFileSize))
		}

		var body io.Reader = resp.Body
		if c.opts.MaxFileSize > 0 {
			body = io.LimitReader(resp.Body, c.opts.MaxFileSize+1)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, "failed to read image body", err)
		}
		if c.opts.MaxFileSize > 0 && int64(len(data)) > c.opts.MaxFileSize {
			return nil, errs.New(errs.ErrorTypeParsing, fmt.Sprintf("image exceeds %d bytes", c.opts.MaxFileSize))
		}
		if len(data) == 0 {
			return nil, errs.New(errs.ErrorTypeParsing, "empty image body")
		}
		return data, nil
	})
}

// GetPage fetches an HTML document. The caller must close the returned body.
func (c *Client) GetPage(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	return retry.DoWithResult(ctx, c.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.get(ctx, pageURL, "", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}
