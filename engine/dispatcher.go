package engine

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/models"
)

// Dispatcher runs fetch strategies in a fixed order and stops at the first
// one that returns 200. Strategies run strictly one after another and
// nothing is remembered between calls.
type Dispatcher struct {
	engines  []Engine
	headless bool
}

// NewDispatcher creates a Dispatcher that tries engines in order.
// headless is applied to requests built by Dispatch.
func NewDispatcher(engines []Engine, headless bool) *Dispatcher {
	return &Dispatcher{engines: engines, headless: headless}
}

// Engines returns the engine names in fallback order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, len(d.engines))
	for i, e := range d.engines {
		names[i] = e.Name()
	}
	return names
}

// Dispatch fetches rawURL through the fallback chain.
func (d *Dispatcher) Dispatch(ctx context.Context, rawURL string) (*models.FetchResponse, error) {
	return d.DispatchRequest(ctx, &models.FetchRequest{URL: rawURL, Headless: d.headless})
}

// DispatchRequest fetches req.URL through the fallback chain.
//
// The URL is validated before any engine runs. Fetch failures are never
// returned as errors: when every engine fails, the last attempted response
// is returned with its status and error fields. An error is returned only
// for invalid input, an empty chain, or a cancelled context.
func (d *Dispatcher) DispatchRequest(ctx context.Context, req *models.FetchRequest) (*models.FetchResponse, error) {
	if err := models.ValidateURL(req.URL); err != nil {
		return nil, err
	}
	if len(d.engines) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "dispatcher: no engines configured", nil)
	}

	var last *models.FetchResponse
	for _, eng := range d.engines {
		if err := ctx.Err(); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "fetch canceled", err)
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL)
		outcome := eng.Fetch(ctx, req)
		last = outcome.Response(req.URL, eng.Name())

		if last.OK() {
			slog.Debug("engine succeeded", "engine", eng.Name(), "url", req.URL)
			return last, nil
		}
		slog.Info("engine failed, falling back",
			"engine", eng.Name(),
			"url", req.URL,
			"outcome", outcome.Kind.String(),
			"status", last.StatusCode,
			"error", last.ErrorMessage,
		)
	}
	return last, nil
}
