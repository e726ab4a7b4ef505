package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// SessionOpener opens browser sessions. *Scraper implements it.
type SessionOpener interface {
	OpenSession(ctx context.Context, headless bool) (Session, error)
}

// Extractor polls a JavaScript-rendered page until the element at the
// content locator shows real content.
type Extractor struct {
	opener          SessionOpener
	pollInterval    time.Duration
	defaultTimeout  time.Duration
	maxAttempts     int
	initialInterval time.Duration
}

// NewExtractor creates an Extractor.
func NewExtractor(opener SessionOpener, cfg config.ExtractConfig) *Extractor {
	x := &Extractor{
		opener:          opener,
		pollInterval:    cfg.PollInterval,
		defaultTimeout:  cfg.DefaultTimeout,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.RetryInitialInterval,
	}
	if x.pollInterval <= 0 {
		x.pollInterval = 5 * time.Second
	}
	if x.maxAttempts < 1 {
		x.maxAttempts = 1
	}
	if x.initialInterval <= 0 {
		x.initialInterval = time.Second
	}
	return x
}

// Extract returns the text at req.ContentLocator once it is non-empty and
// not one of req.Exclude.
//
// Polling ends early with the no-content text when req.NoContentLocator
// matches something. When req.Timeout elapses first, the last text read is
// returned without an error. Navigation timeouts are retried with
// exponential backoff, up to the configured number of attempts; every
// other error is returned as is.
func (x *Extractor) Extract(ctx context.Context, req *models.FetchRequest) (string, error) {
	if err := models.ValidateURL(req.URL); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.ContentLocator) == "" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "content locator is required", nil)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = x.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(x.maxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (string, error) {
		attempt++
		text, err := x.extractOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		if models.IsCode(err, models.ErrCodeTimeout) && ctx.Err() == nil {
			return "", err
		}
		return "", backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		slog.Warn("extract: navigation timed out, retrying",
			"url", req.URL,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
}

// extractOnce runs one session: navigate, then poll.
func (x *Extractor) extractOnce(ctx context.Context, req *models.FetchRequest) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}

	sess, err := x.opener.OpenSession(ctx, req.Headless)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, req.URL); err != nil {
		return "", err
	}

	exclude := make(map[string]struct{}, len(req.Exclude))
	for _, e := range req.Exclude {
		exclude[e] = struct{}{}
	}

	start := time.Now()
	for {
		text, err := sess.Text(ctx, req.ContentLocator)
		if err != nil {
			return "", err
		}

		if req.NoContentLocator != "" {
			none, err := sess.Text(ctx, req.NoContentLocator)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(none) != "" {
				return none, nil
			}
		}

		if _, placeholder := exclude[text]; text != "" && !placeholder {
			return text, nil
		}

		elapsed := time.Since(start)
		if elapsed >= timeout {
			slog.Warn("extract: gave up waiting for content",
				"url", req.URL,
				"locator", req.ContentLocator,
				"elapsed", elapsed.Round(time.Millisecond),
				"last_text", text,
			)
			return text, nil
		}

		if err := sleep(ctx, min(x.pollInterval, timeout-elapsed)); err != nil {
			return "", models.NewScrapeError(models.ErrCodeNavigation, "extraction canceled", err)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
