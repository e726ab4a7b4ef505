package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/config"
)

var cfg *config.Config

var (
	flagLogLevel    string
	flagHeadful     bool
	flagConcurrency int
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Retrieve community directory data from web pages and the analytics API",
	Long: `Fetches pages through an http → rod → chromedp fallback chain, polls
JavaScript-rendered pages for content, checks links, looks up councils by
address, and saves analytics reports. Batch results are appended to
JSON-lines logs so interrupted runs can be resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load()
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		if flagHeadful {
			cfg.Browser.Headless = false
		}
		if flagConcurrency > 0 {
			cfg.Batch.MaxConcurrent = flagConcurrency
		}
		initLogger(cfg.Log)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (default from HARVEST_LOG_LEVEL)")
	pf.BoolVar(&flagHeadful, "headful", false, "show browser windows")
	pf.IntVar(&flagConcurrency, "concurrency", 0, "max in-flight lookups per batch (default from HARVEST_MAX_CONCURRENT)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// command output on stdout stays clean.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
