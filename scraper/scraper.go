package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Scraper launches rod browsers. Every fetch and every extraction session
// gets its own browser process, which is killed when the caller is done
// with it. It is safe for concurrent use.
type Scraper struct {
	browserCfg config.BrowserConfig
	userAgent  string
	navTimeout time.Duration
	active     atomic.Int32
}

// NewScraper creates a Scraper. navTimeout bounds a single page.Navigate.
func NewScraper(browserCfg config.BrowserConfig, fetchCfg config.FetchConfig, navTimeout time.Duration) *Scraper {
	return &Scraper{
		browserCfg: browserCfg,
		userAgent:  fetchCfg.UserAgent,
		navTimeout: navTimeout,
	}
}

// Active returns the number of browsers currently running.
func (s *Scraper) Active() int {
	return int(s.active.Load())
}

// launch starts a dedicated browser and returns it with a release func that
// closes it, kills the process, and removes its profile directory. release
// is safe to call on every exit path.
func (s *Scraper) launch(headless bool) (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(s.browserCfg.NoSandbox)

	if s.browserCfg.BrowserBin != "" {
		l = l.Bin(s.browserCfg.BrowserBin)
	}
	if s.browserCfg.DefaultProxy != "" {
		l = l.Proxy(s.browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	s.active.Add(1)
	slog.Debug("browser launched", "controlURL", controlURL, "active", s.active.Load())

	var released atomic.Bool
	release := func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		if err := browser.Close(); err != nil {
			slog.Debug("browser close failed, killing process", "error", err)
		}
		l.Kill()
		l.Cleanup()
		s.active.Add(-1)
	}
	return browser, release, nil
}
