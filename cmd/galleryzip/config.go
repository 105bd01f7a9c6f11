package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"galleryzip/pkg/config"
	"galleryzip/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage galleryzip configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (GALLERYZIP_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the defaults",
	Long: `Create a configuration file holding every option at its default value.

The file is created as 'galleryzip.yaml' in the current directory unless a
different path is given with --config.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for invalid values.

This command checks:
  - YAML syntax
  - Value ranges
  - Output and cache directories can be created
  - The configured Chrome executable exists`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const configHeader = `# galleryzip configuration
#
# Every option can also be set with GALLERYZIP_* environment variables,
# for example GALLERYZIP_SELECTOR or GALLERYZIP_OUTPUT_DIR.
# Durations use Go syntax: 100ms, 3s, 10m.

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "galleryzip.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set crawl.selector to the CSS selector of your gallery images")
	fmt.Println("2. Run 'galleryzip config validate' to check the configuration")
	fmt.Println("3. Start archiving with 'galleryzip crawl <url>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var problems []error
	for _, dir := range []string{cfg.Output.Directory, cfg.Download.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create %s: %w", dir, err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	if p := cfg.Browser.ExecPath; p != "" && !cfg.Crawl.Static {
		if _, err := os.Stat(p); err != nil {
			problems = append(problems, fmt.Errorf("chrome executable: %w", err))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Selector: %s\n", cfg.Crawl.Selector)
	fmt.Printf("  Filter path index: %d\n", cfg.Filter.PathIndex)
	fmt.Printf("  Scroll: %dpx every %s, up to %s\n", cfg.Crawl.ScrollStep, cfg.Crawl.PollInterval, cfg.Crawl.MaxScrollTime)
	fmt.Printf("  Output directory: %s\n", cfg.Output.Directory)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentWorkers)
	fmt.Printf("  Rate limit: %.1f requests/second\n", cfg.RateLimit.RequestsPerSecond)
	fmt.Printf("  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
