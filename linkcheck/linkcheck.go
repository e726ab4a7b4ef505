// Package linkcheck reports the status of every absolute link on a set of
// pages, one hop deep.
package linkcheck

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/batch"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/tabular"
)

// Fetcher fetches one page through the fallback chain. *engine.Dispatcher
// implements it.
type Fetcher interface {
	Dispatch(ctx context.Context, rawURL string) (*models.FetchResponse, error)
}

// Checker checks pages and the links on them.
type Checker struct {
	fetcher     Fetcher
	cache       *cache.Cache
	concurrency int

	// OnComplete is passed to the batch run by CheckURLs.
	OnComplete func(models.BatchSummary)
}

// New creates a Checker. c may be nil to fetch every link every time.
func New(f Fetcher, c *cache.Cache, concurrency int) *Checker {
	return &Checker{fetcher: f, cache: c, concurrency: concurrency}
}

// CheckURL fetches baseURL and, when it answers 200, every absolute link
// on it, one after another. The base response comes first. Response bodies
// are dropped from the result.
func (c *Checker) CheckURL(ctx context.Context, baseURL string) (models.LinkCheckResult, error) {
	res := models.LinkCheckResult{BaseURL: baseURL}

	base, err := c.fetcher.Dispatch(ctx, baseURL)
	if err != nil {
		return res, err
	}
	res.Responses = append(res.Responses, tag(base, baseURL))
	if !base.OK() {
		slog.Info("linkcheck: base page unavailable", "url", baseURL, "status", base.StatusCode)
		return res, nil
	}

	links, err := cleaner.ExtractLinks(base.Body)
	if err != nil {
		// An empty 200 page has no links to check.
		if models.IsCode(err, models.ErrCodeInvalidInput) {
			return res, nil
		}
		return res, err
	}

	urls := cleaner.SortedLinks(links)
	slog.Info("linkcheck: checking links", "url", baseURL, "links", len(urls))
	for _, u := range urls {
		resp, err := c.fetch(ctx, u)
		if models.IsCode(err, models.ErrCodeInvalidInput) {
			// A malformed href on the page is a broken link, not a failed check.
			resp, err = &models.FetchResponse{
				URL:          u,
				StatusCode:   models.StatusInternalError,
				ErrorName:    models.ErrCodeInvalidInput,
				ErrorMessage: err.Error(),
			}, nil
		}
		if err != nil {
			return res, err
		}
		res.Responses = append(res.Responses, tag(resp, baseURL))
	}
	return res, nil
}

func (c *Checker) fetch(ctx context.Context, u string) (*models.FetchResponse, error) {
	if c.cache != nil {
		if resp, ok := c.cache.Get(u); ok {
			slog.Debug("linkcheck: cache hit", "url", u)
			return resp, nil
		}
	}
	resp, err := c.fetcher.Dispatch(ctx, u)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(u, resp)
	}
	return resp, nil
}

func tag(resp *models.FetchResponse, baseURL string) models.FetchResponse {
	out := *resp
	out.BaseURL = baseURL
	out.Body = ""
	return out
}

// CheckURLs checks every base URL under the concurrency cap and returns
// one row per response. With a log path, base URLs already logged are
// skipped and each new result is appended as it completes.
func (c *Checker) CheckURLs(ctx context.Context, baseURLs []string, logPath string) ([]models.LinkStatus, error) {
	r := batch.NewRunner("linkcheck", c.concurrency,
		func(u string) string { return u },
		c.CheckURL)
	r.IsFailed = func(res models.LinkCheckResult) bool {
		for _, resp := range res.Responses {
			if !resp.OK() {
				return true
			}
		}
		return false
	}
	r.OnComplete = c.OnComplete

	results, err := r.Run(ctx, baseURLs, logPath)
	if err != nil {
		return nil, err
	}
	var rows []models.LinkStatus
	for _, res := range results {
		rows = append(rows, res.Statuses()...)
	}
	return rows, nil
}

// OrgURLs returns the SA Community page of every export row.
func OrgURLs(rows []tabular.CUExportRow, orgURL func(id string) string) []string {
	urls := make([]string, 0, len(rows))
	for _, row := range rows {
		urls = append(urls, orgURL(row.ID))
	}
	return urls
}
