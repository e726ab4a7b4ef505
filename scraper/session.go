package scraper

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/models"
)

// Session is one browser tab used by the Extractor: navigate once, then
// read element text repeatedly.
type Session interface {
	// Navigate loads url and waits for DOMContentLoaded. A navigation that
	// exceeds the driver timeout fails with ErrCodeTimeout.
	Navigate(ctx context.Context, url string) error

	// Text returns the trimmed text of the first element matching xpath,
	// or "" when nothing matches.
	Text(ctx context.Context, xpath string) (string, error)

	// Close releases the browser. Safe to call more than once.
	Close() error
}

// rodSession is a Session backed by a dedicated rod browser.
type rodSession struct {
	scraper *Scraper
	page    *rod.Page
	router  *rod.HijackRouter
	release func()
}

// OpenSession launches a browser and opens a prepared tab.
func (s *Scraper) OpenSession(_ context.Context, headless bool) (Session, error) {
	browser, release, err := s.launch(headless)
	if err != nil {
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		release()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	return &rodSession{scraper: s, page: page, release: release}, nil
}

func (r *rodSession) Navigate(ctx context.Context, target string) error {
	r.router = r.scraper.preparePage(r.page, target)

	navCtx := ctx
	if r.scraper.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, r.scraper.navTimeout)
		defer cancel()
	}
	p := r.page.Context(navCtx)

	waitDOM := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(target); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	waitDOM()
	if err := navCtx.Err(); err != nil && ctx.Err() == nil {
		return categorizeError(err, "page did not finish loading")
	}
	return nil
}

func (r *rodSession) Text(ctx context.Context, xpath string) (string, error) {
	els, err := r.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return "", categorizeError(err, "failed to query "+xpath)
	}
	if len(els) == 0 {
		return "", nil
	}
	text, err := els.First().Text()
	if err != nil {
		// The node can detach between query and read while the page renders.
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

func (r *rodSession) Close() error {
	if r.router != nil {
		_ = r.router.Stop()
		r.router = nil
	}
	r.release()
	return nil
}
