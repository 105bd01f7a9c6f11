package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"galleryzip/internal/server"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/fetch"
	"galleryzip/pkg/logger"
	"galleryzip/pkg/ui"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept crawl batches over HTTP",
	Long: `Run an HTTP relay that accepts crawl batches.

  POST /crawl    {"tasks":[{"url":"...","selector":"..."}]}
                 streams one JSON completion per line as tasks finish
  GET  /healthz  reports whether a batch is running

Batches run one at a time against a single browser.`,
	Example: `  galleryzip serve --addr 127.0.0.1:8080
  curl -N -d '{"tasks":[{"url":"https://example.com/gallery/1"}]}' localhost:8080/crawl`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address")
	serveCmd.Flags().BoolVar(&staticMode, "static", false, "fetch pages over HTTP without a browser")
	serveCmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for the archives")
	serveCmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	serveCmd.Flags().StringVar(&chromePath, "chrome", "", "path to the Chrome executable")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := crawlFlags(cmd)
	if cmd.Flags().Changed("addr") {
		flags["addr"] = serveAddr
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger().WithField("command", "serve")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open, closeBrowser, err := pageOpener(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBrowser()

	c := crawler.New(cfg, open, fetch.FromConfig(cfg, log), crawler.WithLogger(log))

	ui.PrintInfo("Listening on", cfg.Server.Addr)
	return server.New(c, cfg.Server, log).Run(ctx)
}
