package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// ChromedpEngine is the native-driver strategy. Every fetch launches its
// own Chrome process through a fresh exec allocator and tears it down
// before returning.
type ChromedpEngine struct {
	browserCfg   config.BrowserConfig
	userAgent    string
	timeout      time.Duration
	implicitWait time.Duration
}

// NewChromedpEngine creates a ChromedpEngine.
func NewChromedpEngine(browserCfg config.BrowserConfig, fetchCfg config.FetchConfig) *ChromedpEngine {
	return &ChromedpEngine{
		browserCfg:   browserCfg,
		userAgent:    fetchCfg.UserAgent,
		timeout:      fetchCfg.BrowserTimeout,
		implicitWait: fetchCfg.ImplicitWait,
	}
}

func (e *ChromedpEngine) Name() string { return "chromedp" }

// allocatorOptions appends the stealth and sandbox flags to chromedp's
// defaults.
func (e *ChromedpEngine) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(e.userAgent),
	)
	if e.browserCfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if e.browserCfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(e.browserCfg.BrowserBin))
	}
	if e.browserCfg.DefaultProxy != "" {
		opts = append(opts, chromedp.ProxyServer(e.browserCfg.DefaultProxy))
	}
	return opts
}

// Fetch navigates, waits up to the implicit wait for the body, and reads
// the page source.
func (e *ChromedpEngine) Fetch(ctx context.Context, req *models.FetchRequest) Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, e.allocatorOptions(req.Headless)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(req.URL)); err != nil {
		return classifyDriverError(err)
	}

	// A missing body only shortens the wait; the source is read regardless.
	waitCtx, cancelWait := context.WithTimeout(browserCtx, e.implicitWait)
	_ = chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	cancelWait()

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return classifyDriverError(err)
	}
	return OutcomeOK(http.StatusOK, html)
}

// classifyDriverError maps a driver error to an outcome: an unresolvable
// host is "not found", everything else is an internal error.
func classifyDriverError(err error) Outcome {
	msg := err.Error()
	if strings.Contains(msg, "ERR_NAME_NOT_RESOLVED") {
		return OutcomeNotFound(msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeInternalError(models.ErrCodeTimeout, msg)
	}
	return OutcomeInternalError("WebDriverException", msg)
}
