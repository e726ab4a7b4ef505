package models

import (
	"net/http"
	"strings"
)

// StatusInternalError is the sentinel status recorded when a strategy
// could not obtain any HTTP response at all.
const StatusInternalError = http.StatusInternalServerError

// FetchResponse is the normalized outcome of one fetch attempt.
type FetchResponse struct {
	// URL is the requested page.
	URL string `json:"url"`

	// BaseURL is set by the link checker to the page the URL was found on.
	BaseURL string `json:"base_url,omitempty"`

	// StatusCode is the real HTTP status, or StatusInternalError when no
	// response was received. Always set.
	StatusCode int `json:"status_code"`

	// Body is the page content. Empty on failure.
	Body string `json:"body,omitempty"`

	// ErrorName is a short machine-readable failure name, e.g. "NOT_FOUND".
	ErrorName string `json:"error_name,omitempty"`

	// ErrorMessage is the human-readable failure detail.
	ErrorMessage string `json:"error_message,omitempty"`

	// Engine names the strategy that produced this response.
	Engine string `json:"engine,omitempty"`
}

// OK reports whether the response carries a 200 status.
func (r *FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// StatusName converts an HTTP status code to its upper-snake name,
// e.g. 404 -> "NOT_FOUND". Unknown codes yield "UNKNOWN".
func StatusName(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "UNKNOWN"
	}
	text = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text)
	return strings.ToUpper(text)
}

// LinkStatus is one flattened link-check row.
type LinkStatus struct {
	BaseURL      string `json:"base_url" csv:"base_url"`
	URL          string `json:"url" csv:"url"`
	StatusCode   int    `json:"status_code" csv:"status_code"`
	ErrorName    string `json:"error_name,omitempty" csv:"error_name"`
	ErrorMessage string `json:"error_message,omitempty" csv:"error_message"`
	Engine       string `json:"engine,omitempty" csv:"engine"`
}

// PageResponse is the response for POST /api/v1/fetch.
type PageResponse struct {
	Success      bool         `json:"success"`
	URL          string       `json:"url"`
	StatusCode   int          `json:"status_code"`
	Content      string       `json:"content"`
	ErrorName    string       `json:"error_name,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	EngineUsed   string       `json:"engine_used,omitempty"`
	CacheStatus  string       `json:"cache_status,omitempty"`
	Timing       TimingInfo   `json:"timing"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// LinksResponse is the response for POST /api/v1/links.
type LinksResponse struct {
	Success bool         `json:"success"`
	Links   []string     `json:"links"`
	Total   int          `json:"total"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	Success bool         `json:"success"`
	Text    string       `json:"text"`
	Timing  TimingInfo   `json:"timing"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo provides duration breakdowns in milliseconds.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	NavigationMs int64 `json:"navigation_ms,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Uptime  string   `json:"uptime"`
	Engines []string `json:"engines"`
	Version string   `json:"version"`
}

// ErrorResponse is the body of a request rejected before a handler ran.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
