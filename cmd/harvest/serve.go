package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the fetch, links and extract endpoints over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		slog.Info("harvest starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
		)

		sc := newScraper(cfg)
		d := newDispatcher(cfg, sc)
		x := newExtractor(cfg, sc)

		cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		defer cc.Close()

		router := api.NewRouter(d, x, cfg, cc, time.Now())

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{Addr: addr, Handler: router}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-cmd.Context().Done():
			slog.Info("shutdown signal received")
		}

		// In-flight requests get 5 seconds; browsers still open are
		// released by their own request contexts.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err, "active_browsers", sc.Active())
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		slog.Info("harvest stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
