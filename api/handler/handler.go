// Package handler implements the HTTP endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
)

// Fetcher fetches pages through the fallback chain. *engine.Dispatcher
// implements it.
type Fetcher interface {
	Dispatch(ctx context.Context, rawURL string) (*models.FetchResponse, error)
	Engines() []string
}

// TextExtractor reads rendered text from a page. *scraper.Extractor
// implements it.
type TextExtractor interface {
	Extract(ctx context.Context, req *models.FetchRequest) (string, error)
}

// scrapeError returns err as a ScrapeError, wrapping it as an internal
// error when it is not one.
func scrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// errorStatus translates error codes to HTTP status codes.
func errorStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case models.ErrCodeNavigation:
		return http.StatusBadGateway
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
	})
}
