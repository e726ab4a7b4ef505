package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/models"
)

// statusJS reads the HTTP status of the main document from the navigation
// timing entry. It needs no CDP network listeners.
const statusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch(e) {}
	return 0;
}`

// FetchPage is the scripted-browser fetch: it launches a browser, waits for
// DOMContentLoaded, and returns the final status and rendered HTML. The
// browser is released on every exit path.
//
// It matches engine.BrowserFetchFunc.
func (s *Scraper) FetchPage(ctx context.Context, req *models.FetchRequest) (int, string, error) {
	if err := models.ValidateURL(req.URL); err != nil {
		return 0, "", err
	}

	browser, release, err := s.launch(req.Headless)
	if err != nil {
		return 0, "", err
	}
	defer release()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return 0, "", models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	router := s.preparePage(page, req.URL)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// The waiter must exist before Navigate or the event can be missed.
	waitDOM := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(req.URL); err != nil {
		return 0, "", categorizeError(err, "navigation to target URL failed")
	}
	waitDOM()

	status := 0
	if res, err := p.Eval(statusJS); err == nil {
		status = res.Value.Int()
	}

	html, err := p.HTML()
	if err != nil {
		return 0, "", categorizeError(err, "failed to extract page HTML")
	}
	return status, html, nil
}

// preparePage applies stealth, the user agent, extra headers, and resource
// blocking. It must run before the first navigation. The returned router,
// when non-nil, must be stopped by the caller.
func (s *Scraper) preparePage(page *rod.Page, target string) *rod.HijackRouter {
	if s.browserCfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if s.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.userAgent,
			AcceptLanguage: "en-AU,en;q=0.9",
		}); err != nil {
			slog.Debug("user agent override failed", "error", err)
		}
	}

	headers := map[string]string{}
	if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}

	return setupHijack(page, s.browserCfg.BlockedResourceTypes, s.browserCfg.BlockAds)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors. Only the
// timeout code is retried by the Extractor.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeNavigation, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
