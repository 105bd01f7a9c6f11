package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "#img_list img", cfg.Crawl.Selector)
	assert.Equal(t, "#img_list > div span", cfg.Crawl.CounterSelector)
	assert.Equal(t, 300, cfg.Crawl.ScrollStep)
	assert.Equal(t, 100*time.Millisecond, cfg.Crawl.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Crawl.MaxScrollTime)
	assert.Equal(t, 3*time.Second, cfg.Crawl.SettleDelay)
	assert.Equal(t, 8*time.Second, cfg.Crawl.SelectorTimeout)
	assert.Zero(t, cfg.Crawl.ExpectedCount)
	assert.Equal(t, 2, cfg.Filter.PathIndex)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.ElementsMatch(t, []string{"Image", "Document", "Script", "XHR", "Fetch"}, cfg.Browser.AllowedResourceTypes)

	assert.Equal(t, "cache", cfg.Download.CacheDir)
	assert.True(t, cfg.Download.ClearCache)
	assert.Equal(t, "dist", cfg.Output.Directory)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GALLERYZIP_SELECTOR", ".gallery img")
	t.Setenv("GALLERYZIP_SCROLL_STEP", "500")
	t.Setenv("GALLERYZIP_EXPECTED_COUNT", "48")
	t.Setenv("GALLERYZIP_SETTLE_DELAY", "1500ms")
	t.Setenv("GALLERYZIP_FILTER_PATH_INDEX", "4")
	t.Setenv("GALLERYZIP_CLEAR_CACHE", "false")
	t.Setenv("GALLERYZIP_HEADLESS", "false")
	t.Setenv("GALLERYZIP_OUTPUT_DIR", "/tmp/galleries")
	t.Setenv("GALLERYZIP_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, ".gallery img", cfg.Crawl.Selector)
	assert.Equal(t, 500, cfg.Crawl.ScrollStep)
	assert.Equal(t, 48, cfg.Crawl.ExpectedCount)
	assert.Equal(t, 1500*time.Millisecond, cfg.Crawl.SettleDelay)
	assert.Equal(t, 4, cfg.Filter.PathIndex)
	assert.False(t, cfg.Download.ClearCache)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/galleries", cfg.Output.Directory)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("GALLERYZIP_SCROLL_STEP", "lots")
	t.Setenv("GALLERYZIP_POLL_INTERVAL", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GALLERYZIP_SCROLL_STEP")
	assert.Contains(t, err.Error(), "GALLERYZIP_POLL_INTERVAL")
	assert.Equal(t, 300, cfg.Crawl.ScrollStep, "invalid value must not clobber the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero expected count is allowed", mutate: func(c *Config) { c.Crawl.ExpectedCount = 0 }},
		{name: "zero settle delay is allowed", mutate: func(c *Config) { c.Crawl.SettleDelay = 0 }},
		{name: "empty selector", mutate: func(c *Config) { c.Crawl.Selector = "" }, wantError: true},
		{name: "zero scroll step", mutate: func(c *Config) { c.Crawl.ScrollStep = 0 }, wantError: true},
		{name: "zero poll interval", mutate: func(c *Config) { c.Crawl.PollInterval = 0 }, wantError: true},
		{name: "zero max scroll time", mutate: func(c *Config) { c.Crawl.MaxScrollTime = 0 }, wantError: true},
		{name: "negative settle delay", mutate: func(c *Config) { c.Crawl.SettleDelay = -time.Second }, wantError: true},
		{name: "negative expected count", mutate: func(c *Config) { c.Crawl.ExpectedCount = -1 }, wantError: true},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Crawl.ProbeTimeout = 0 }, wantError: true},
		{name: "zero filter index", mutate: func(c *Config) { c.Filter.PathIndex = 0 }, wantError: true},
		{name: "too many workers", mutate: func(c *Config) { c.Download.ConcurrentWorkers = 100 }, wantError: true},
		{name: "missing output dir", mutate: func(c *Config) { c.Output.Directory = "" }, wantError: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawl.ScrollStep = 0
	cfg.Output.Directory = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scroll step")
	assert.Contains(t, err.Error(), "output directory")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crawl:
  selector: "div.pics img"
  scroll_step: 600
  settle_delay: 2s
  max_scroll_time: 90s
filter:
  path_index: 3
output:
  directory: ./zips
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "div.pics img", cfg.Crawl.Selector)
	assert.Equal(t, 600, cfg.Crawl.ScrollStep)
	assert.Equal(t, 2*time.Second, cfg.Crawl.SettleDelay)
	assert.Equal(t, 90*time.Second, cfg.Crawl.MaxScrollTime)
	assert.Equal(t, 3, cfg.Filter.PathIndex)
	assert.Equal(t, "./zips", cfg.Output.Directory)
	// untouched keys keep their defaults
	assert.Equal(t, 100*time.Millisecond, cfg.Crawl.PollInterval)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("crawl: [unterminated"), 0644))
	assert.Error(t, cfg.LoadFromFile(bad))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.ExpectedCount = 24
	cfg.Browser.AllowedResourceTypes = []string{"Image", "Document"}
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "crawl")
	assert.Contains(t, raw, "browser")

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 24, loaded.Crawl.ExpectedCount)
	assert.Equal(t, []string{"Image", "Document"}, loaded.Browser.AllowedResourceTypes)
	assert.Equal(t, cfg.Crawl.SettleDelay, loaded.Crawl.SettleDelay)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"selector":     "img.lazy",
		"expected":     12,
		"filter-index": 5,
		"output":       "out",
		"workers":      2,
		"keep-cache":   true,
		"static":       true,
		"headful":      true,
		"log-level":    "warn",
		"unknown-flag": "ignored",
	})

	assert.Equal(t, "img.lazy", cfg.Crawl.Selector)
	assert.Equal(t, 12, cfg.Crawl.ExpectedCount)
	assert.Equal(t, 5, cfg.Filter.PathIndex)
	assert.Equal(t, "out", cfg.Output.Directory)
	assert.Equal(t, 2, cfg.Download.ConcurrentWorkers)
	assert.False(t, cfg.Download.ClearCache)
	assert.True(t, cfg.Crawl.Static)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestMergeCommandLineFlagsIgnoresZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"selector": "",
		"expected": 0,
		"workers":  0,
	})

	assert.Equal(t, DefaultConfig().Crawl.Selector, cfg.Crawl.Selector)
	assert.Equal(t, DefaultConfig().Download.ConcurrentWorkers, cfg.Download.ConcurrentWorkers)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  scroll_step: 400\n  expected_count: 10\n"), 0644))

	t.Setenv("GALLERYZIP_EXPECTED_COUNT", "20")

	cfg, err := Load(path, map[string]interface{}{"output": "from-flag"})
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Crawl.ScrollStep, "file beats defaults")
	assert.Equal(t, 20, cfg.Crawl.ExpectedCount, "env beats file")
	assert.Equal(t, "from-flag", cfg.Output.Directory, "flags beat env")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  scroll_step: -5\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
