package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"galleryzip/pkg/config"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/fetch"
	"galleryzip/pkg/logger"
	"galleryzip/pkg/ratelimit"
	"galleryzip/pkg/static"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t          *testing.T
	mockServer *MockGalleryServer
	tempDir    string
}

// NewTestHelper creates a test helper with a mock server that is closed when
// the test ends
func NewTestHelper(t *testing.T) *TestHelper {
	h := &TestHelper{
		t:          t,
		tempDir:    t.TempDir(),
		mockServer: NewMockGalleryServer(),
	}
	t.Cleanup(h.mockServer.Close)
	return h
}

// Server returns the mock gallery server
func (h *TestHelper) Server() *MockGalleryServer {
	return h.mockServer
}

// CreateTestLogger returns a logger that records messages
func (h *TestHelper) CreateTestLogger() *logger.TestLogger {
	return logger.NewTestLogger()
}

// CreateTestConfig returns a static-mode configuration writing into the temp dir
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Crawl.Static = true
	cfg.Filter.PathIndex = 2
	cfg.Download.ConcurrentWorkers = 3
	cfg.Download.Timeout = 5 * time.Second
	cfg.Download.CacheDir = filepath.Join(h.tempDir, "cache")
	cfg.Output.Directory = filepath.Join(h.tempDir, "dist")
	cfg.Retry.MaxAttempts = 1
	cfg.Logging.Level = "error"
	require.NoError(h.t, cfg.Validate())
	return cfg
}

// NewCrawler builds a static-mode crawler the way the crawl command does
func (h *TestHelper) NewCrawler(cfg *config.Config, log logger.Logger, opts ...crawler.Option) *crawler.Crawler {
	client := fetch.FromConfig(cfg, log)
	open := func(ctx context.Context) (crawler.Page, error) {
		return static.NewPage(client), nil
	}
	opts = append([]crawler.Option{
		crawler.WithLogger(log),
		crawler.WithLimiter(ratelimit.Unlimited{}),
	}, opts...)
	return crawler.New(cfg, open, client, opts...)
}

// AssertFileExists fails the test if path does not exist
func (h *TestHelper) AssertFileExists(path string) {
	h.t.Helper()
	_, err := os.Stat(path)
	require.NoError(h.t, err, "expected file %s", path)
}

// AssertDirContainsFiles fails the test unless dir holds exactly n files
// matching pattern
func (h *TestHelper) AssertDirContainsFiles(dir, pattern string, n int) []string {
	h.t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(h.t, err)
	require.Len(h.t, matches, n, "files matching %s in %s", pattern, dir)
	return matches
}
