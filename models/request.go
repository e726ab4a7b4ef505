package models

import (
	"net/url"
	"strings"
	"time"
)

// FetchRequest is one page-fetch or extraction intent. Components treat it
// as read-only.
type FetchRequest struct {
	// URL is the target page: an absolute http or https URL.
	URL string

	// Headless controls whether browser strategies run without a window.
	Headless bool

	// Exclude lists placeholder texts (e.g. "Loading...") that mean the
	// content locator has not rendered real content yet.
	Exclude []string

	// Timeout bounds the extraction poll loop or a single fetch attempt.
	Timeout time.Duration

	// ContentLocator is an XPath expression for the element to read.
	ContentLocator string

	// NoContentLocator is an optional XPath expression whose non-empty text
	// signals a definitive "no results" page.
	NoContentLocator string
}

// ValidateURL rejects empty URLs and anything that is not an absolute
// http or https URL with a host. It does no network activity.
func ValidateURL(raw string) error {
	u := strings.TrimSpace(raw)
	if u == "" {
		return NewScrapeError(ErrCodeInvalidInput, "url is required", nil)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return NewScrapeError(ErrCodeInvalidInput, "invalid url "+raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return NewScrapeError(ErrCodeInvalidInput, "invalid url "+raw+": scheme must be http or https", nil)
	}
	if parsed.Host == "" {
		return NewScrapeError(ErrCodeInvalidInput, "invalid url "+raw+": missing host", nil)
	}
	return nil
}

// PageRequest is the payload for POST /api/v1/fetch.
type PageRequest struct {
	// URL is the page to fetch. Required.
	URL string `json:"url" binding:"required"`

	// OutputFormat controls the body format: "html" (default) or "markdown".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown"`

	// MaxAge allows serving a cached response younger than this many
	// milliseconds. 0 disables the cache lookup.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *PageRequest) Defaults() {
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
}

// LinksRequest is the payload for POST /api/v1/links. Exactly one of URL or
// HTML is used; HTML wins when both are set.
type LinksRequest struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`
}

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	URL              string   `json:"url" binding:"required"`
	Locator          string   `json:"locator" binding:"required"`
	NoContentLocator string   `json:"no_content_locator,omitempty"`
	Exclude          []string `json:"exclude,omitempty"`

	// Timeout in seconds. Default: 60. Max: 600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// Headless defaults to true.
	Headless *bool `json:"headless,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 60
	}
	if r.Headless == nil {
		t := true
		r.Headless = &t
	}
}

// FetchRequest converts the payload to the internal request type.
func (r *ExtractRequest) FetchRequest() *FetchRequest {
	headless := true
	if r.Headless != nil {
		headless = *r.Headless
	}
	return &FetchRequest{
		URL:              r.URL,
		Headless:         headless,
		Exclude:          r.Exclude,
		Timeout:          time.Duration(r.Timeout) * time.Second,
		ContentLocator:   r.Locator,
		NoContentLocator: r.NoContentLocator,
	}
}
