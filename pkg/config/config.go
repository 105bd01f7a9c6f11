package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent mimics a desktop Chrome so galleries serve their regular markup
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

// Config holds all configuration options for the gallery crawler
type Config struct {
	Browser       BrowserConfig      `yaml:"browser" json:"browser"`
	Crawl         CrawlConfig        `yaml:"crawl" json:"crawl"`
	Filter        FilterConfig       `yaml:"filter" json:"filter"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Retry         RetryConfig        `yaml:"retry" json:"retry"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Server        ServerConfig       `yaml:"server" json:"server"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// BrowserConfig controls the headless Chrome session
type BrowserConfig struct {
	ExecPath             string        `yaml:"exec_path" json:"exec_path"`
	Headless             bool          `yaml:"headless" json:"headless"`
	NoSandbox            bool          `yaml:"no_sandbox" json:"no_sandbox"`
	UserAgent            string        `yaml:"user_agent" json:"user_agent"`
	ViewportWidth        int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight       int           `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeout    time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	AllowedResourceTypes []string      `yaml:"allowed_resource_types" json:"allowed_resource_types"`
}

// CrawlConfig holds the scroll loop parameters and page selectors
type CrawlConfig struct {
	Selector         string        `yaml:"selector" json:"selector"`
	CounterSelector  string        `yaml:"counter_selector" json:"counter_selector"`
	SelectorTimeout  time.Duration `yaml:"selector_timeout" json:"selector_timeout"`
	ScrollStep       int           `yaml:"scroll_step" json:"scroll_step"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxScrollTime    time.Duration `yaml:"max_scroll_time" json:"max_scroll_time"`
	SettleDelay      time.Duration `yaml:"settle_delay" json:"settle_delay"`
	ExpectedCount    int           `yaml:"expected_count" json:"expected_count"`
	MaxProbeFailures int           `yaml:"max_probe_failures" json:"max_probe_failures"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	Static           bool          `yaml:"static" json:"static"`
}

// FilterConfig controls which images belong to the gallery
type FilterConfig struct {
	PathIndex int `yaml:"path_index" json:"path_index"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentWorkers int           `yaml:"concurrent_workers" json:"concurrent_workers"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	CacheDir          string        `yaml:"cache_dir" json:"cache_dir"`
	ClearCache        bool          `yaml:"clear_cache" json:"clear_cache"`
	SendReferer       bool          `yaml:"send_referer" json:"send_referer"`
	MaxFileSize       int64         `yaml:"max_file_size" json:"max_file_size"`
}

// RateLimitConfig holds the image request rate limit
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// RetryConfig holds retry policy for image downloads
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// OutputConfig holds archive output configuration
type OutputConfig struct {
	Directory     string `yaml:"directory" json:"directory"`
	WriteManifest bool   `yaml:"write_manifest" json:"write_manifest"`
}

// ServerConfig holds the task relay server configuration
type ServerConfig struct {
	Addr          string        `yaml:"addr" json:"addr"`
	MaxBatchSize  int           `yaml:"max_batch_size" json:"max_batch_size"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         false,
			UserAgent:         DefaultUserAgent,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: 10 * time.Minute,
			AllowedResourceTypes: []string{
				"Image", "Document", "Script", "XHR", "Fetch",
			},
		},
		Crawl: CrawlConfig{
			Selector:         "#img_list img",
			CounterSelector:  "#img_list > div span",
			SelectorTimeout:  8 * time.Second,
			ScrollStep:       300,
			PollInterval:     100 * time.Millisecond,
			MaxScrollTime:    10 * time.Minute,
			SettleDelay:      3 * time.Second,
			ExpectedCount:    0,
			MaxProbeFailures: 3,
			ProbeTimeout:     10 * time.Second,
		},
		Filter: FilterConfig{
			PathIndex: 2,
		},
		Download: DownloadConfig{
			ConcurrentWorkers: 8,
			Timeout:           30 * time.Second,
			CacheDir:          "cache",
			ClearCache:        true,
			SendReferer:       true,
			MaxFileSize:       0, // 0 means no limit
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             8,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
		Output: OutputConfig{
			Directory:     "dist",
			WriteManifest: true,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8080",
			MaxBatchSize:  50,
			ShutdownGrace: 10 * time.Second,
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

const envPrefix = "GALLERYZIP_"

// LoadFromEnv loads configuration from GALLERYZIP_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	envString("CHROME_PATH", &c.Browser.ExecPath)
	envString("USER_AGENT", &c.Browser.UserAgent)
	if v := os.Getenv(envPrefix + "HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) != "false"
	}
	if v := os.Getenv(envPrefix + "NO_SANDBOX"); v != "" {
		c.Browser.NoSandbox = strings.ToLower(v) == "true"
	}

	envString("SELECTOR", &c.Crawl.Selector)
	errs = append(errs,
		envInt("SCROLL_STEP", &c.Crawl.ScrollStep),
		envInt("EXPECTED_COUNT", &c.Crawl.ExpectedCount),
		envDuration("POLL_INTERVAL", &c.Crawl.PollInterval),
		envDuration("MAX_SCROLL_TIME", &c.Crawl.MaxScrollTime),
		envDuration("SETTLE_DELAY", &c.Crawl.SettleDelay),
		envInt("FILTER_PATH_INDEX", &c.Filter.PathIndex),
		envInt("CONCURRENT_WORKERS", &c.Download.ConcurrentWorkers),
	)

	envString("CACHE_DIR", &c.Download.CacheDir)
	if v := os.Getenv(envPrefix + "CLEAR_CACHE"); v != "" {
		c.Download.ClearCache = strings.ToLower(v) == "true"
	}
	envString("OUTPUT_DIR", &c.Output.Directory)
	envString("SERVER_ADDR", &c.Server.Addr)

	if v := os.Getenv(envPrefix + "NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return nil
	}
	var val int
	if _, err := fmt.Sscanf(v, "%d", &val); err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = val
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".galleryzip.yaml",
		".galleryzip.yml",
		filepath.Join(home, ".config", "galleryzip", "config.yaml"),
		filepath.Join(home, ".config", "galleryzip", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Crawl.Selector == "" {
		errs = append(errs, errors.New("image selector is required"))
	}
	if c.Crawl.ScrollStep <= 0 {
		errs = append(errs, errors.New("scroll step must be positive"))
	}
	if c.Crawl.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Crawl.MaxScrollTime <= 0 {
		errs = append(errs, errors.New("max scroll time must be positive"))
	}
	if c.Crawl.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay cannot be negative"))
	}
	if c.Crawl.ExpectedCount < 0 {
		errs = append(errs, errors.New("expected count cannot be negative"))
	}
	if c.Crawl.MaxProbeFailures <= 0 {
		errs = append(errs, errors.New("max probe failures must be positive"))
	}
	if c.Crawl.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe timeout must be positive"))
	}
	if c.Filter.PathIndex <= 0 {
		errs = append(errs, errors.New("filter path index must be positive"))
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		errs = append(errs, errors.New("viewport dimensions must be positive"))
	}

	if c.Download.ConcurrentWorkers <= 0 {
		errs = append(errs, errors.New("concurrent workers must be positive"))
	}
	if c.Download.ConcurrentWorkers > 64 {
		errs = append(errs, errors.New("concurrent workers should not exceed 64"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.CacheDir == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests per second must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in flags are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["selector"].(string); ok && v != "" {
		c.Crawl.Selector = v
	}
	if v, ok := flags["expected"].(int); ok && v > 0 {
		c.Crawl.ExpectedCount = v
	}
	if v, ok := flags["scroll-step"].(int); ok && v > 0 {
		c.Crawl.ScrollStep = v
	}
	if v, ok := flags["max-scroll-time"].(time.Duration); ok && v > 0 {
		c.Crawl.MaxScrollTime = v
	}
	if v, ok := flags["static"].(bool); ok && v {
		c.Crawl.Static = true
	}
	if v, ok := flags["filter-index"].(int); ok && v > 0 {
		c.Filter.PathIndex = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.ConcurrentWorkers = v
	}
	if v, ok := flags["keep-cache"].(bool); ok && v {
		c.Download.ClearCache = false
	}
	if v, ok := flags["headful"].(bool); ok && v {
		c.Browser.Headless = false
	}
	if v, ok := flags["chrome"].(string); ok && v != "" {
		c.Browser.ExecPath = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".galleryzip.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
