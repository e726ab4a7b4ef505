package engine

import (
	"context"
	"net/http"

	"github.com/use-agent/harvest/models"
)

// Engine is the interface that all fetch strategies must implement.
//
// Fetch never returns a Go error for fetch-level failures: every failure
// is classified into the returned Outcome so the Dispatcher can move on to
// the next strategy.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "chromedp").
	Name() string

	// Fetch retrieves the page for the given request.
	Fetch(ctx context.Context, req *models.FetchRequest) Outcome
}

// Kind tags the variant held by an Outcome.
type Kind int

const (
	// KindOK means a response was received. Its status may still be non-200.
	KindOK Kind = iota
	// KindNotFound means the host could not be resolved.
	KindNotFound
	// KindInternalError means no response was obtained.
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Outcome is the result of one strategy attempt.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Body       string
	ErrorName  string
	Detail     string
}

// OutcomeOK records a received response.
func OutcomeOK(status int, body string) Outcome {
	return Outcome{Kind: KindOK, StatusCode: status, Body: body}
}

// OutcomeNotFound records a name-resolution failure.
func OutcomeNotFound(detail string) Outcome {
	return Outcome{
		Kind:       KindNotFound,
		StatusCode: http.StatusNotFound,
		ErrorName:  models.StatusName(http.StatusNotFound),
		Detail:     detail,
	}
}

// OutcomeInternalError records a failure that produced no response.
func OutcomeInternalError(name, detail string) Outcome {
	if name == "" {
		name = "Exception"
	}
	return Outcome{
		Kind:       KindInternalError,
		StatusCode: models.StatusInternalError,
		ErrorName:  name,
		Detail:     detail,
	}
}

// Response converts the outcome to a FetchResponse. Non-200 statuses carry
// the status name and text as error fields and an empty body.
func (o Outcome) Response(url, engineName string) *models.FetchResponse {
	resp := &models.FetchResponse{
		URL:        url,
		StatusCode: o.StatusCode,
		Engine:     engineName,
	}
	switch o.Kind {
	case KindOK:
		if o.StatusCode == http.StatusOK {
			resp.Body = o.Body
			return resp
		}
		resp.ErrorName = models.StatusName(o.StatusCode)
		resp.ErrorMessage = http.StatusText(o.StatusCode)
	default:
		resp.ErrorName = o.ErrorName
		resp.ErrorMessage = o.Detail
	}
	return resp
}
