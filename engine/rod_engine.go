package engine

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/harvest/models"
)

// BrowserFetchFunc loads a page in a fresh browser session and returns the
// final HTTP status and rendered HTML. It is injected from main.go so that
// engine/ never imports scraper/.
type BrowserFetchFunc func(ctx context.Context, req *models.FetchRequest) (status int, html string, err error)

// RodEngine is the scripted-browser strategy. It delegates to the rod
// scraper through a callback.
type RodEngine struct {
	fetchFunc BrowserFetchFunc
	timeout   time.Duration
}

// NewRodEngine creates a RodEngine. timeout bounds one attempt; zero means
// only the caller's context applies.
func NewRodEngine(fetchFunc BrowserFetchFunc, timeout time.Duration) *RodEngine {
	return &RodEngine{fetchFunc: fetchFunc, timeout: timeout}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) Fetch(ctx context.Context, req *models.FetchRequest) Outcome {
	if e.fetchFunc == nil {
		return OutcomeInternalError("Exception", "rod: fetchFunc not configured")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	status, html, err := e.fetchFunc(ctx, req)
	if err != nil {
		return OutcomeInternalError(errorName(err), err.Error())
	}
	// The status comes from the navigation timing entry, which is 0 for
	// pages served from cache or about:blank style documents.
	if status == 0 {
		status = 200
	}
	return OutcomeOK(status, html)
}

// errorName picks a short name for err: the ScrapeError code when there is
// one, otherwise "Exception".
func errorName(err error) string {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return "Exception"
}
