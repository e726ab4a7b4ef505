package main

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/council"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

func newScraper(c *config.Config) *scraper.Scraper {
	return scraper.NewScraper(c.Browser, c.Fetch, c.Extract.NavigationTimeout)
}

// buildEngines returns the strategies named in c.Fetch.Engines, in order.
// Unknown names are skipped with a warning.
func buildEngines(c *config.Config, fetch engine.BrowserFetchFunc) []engine.Engine {
	var engines []engine.Engine
	for _, name := range c.Fetch.Engines {
		switch name {
		case "http":
			engines = append(engines, engine.NewHTTPEngine(c.Fetch.HTTPTimeout, c.Fetch.UserAgent))
		case "rod":
			engines = append(engines, engine.NewRodEngine(fetch, c.Fetch.BrowserTimeout))
		case "chromedp":
			engines = append(engines, engine.NewChromedpEngine(c.Browser, c.Fetch))
		default:
			slog.Warn("unknown engine, skipping", "engine", name)
		}
	}
	return engines
}

// newDispatcher wires the fallback chain. The rod strategy reaches the
// scraper through a callback so engine/ never imports scraper/.
func newDispatcher(c *config.Config, sc *scraper.Scraper) *engine.Dispatcher {
	d := engine.NewDispatcher(buildEngines(c, sc.FetchPage), c.Browser.Headless)
	slog.Info("fetch chain ready", "engines", d.Engines())
	return d
}

func newExtractor(c *config.Config, sc *scraper.Scraper) *scraper.Extractor {
	return scraper.NewExtractor(sc, c.Extract)
}

func newCouncilService(ctx context.Context, c *config.Config) *council.Service {
	sc := newScraper(c)
	s := council.NewService(newExtractor(c, sc), council.Options{
		Council:     c.Council,
		Headless:    c.Browser.Headless,
		Concurrency: c.Batch.MaxConcurrent,
		HTTPTimeout: c.Fetch.HTTPTimeout,
		UserAgent:   c.Fetch.UserAgent,
	})
	s.OnComplete = completionHook(ctx, c)
	return s
}

// completionHook returns the batch.completed webhook hook, or nil when no
// webhook is configured.
func completionHook(ctx context.Context, c *config.Config) func(models.BatchSummary) {
	return webhook.Notifier{URL: c.Webhook.URL, Secret: c.Webhook.Secret}.Hook(ctx)
}
