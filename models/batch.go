package models

import "strings"

// NoResultsPrefix starts the text the council lookup page shows when an
// address could not be matched.
const NoResultsPrefix = "No results found."

// ScrapeRecord is one orchestrated lookup result. Its JSON form is the
// line format of the result logs.
type ScrapeRecord struct {
	// Subject identifiers. Key picks the first non-empty one.
	OrgID   string `json:"org_id,omitempty"`
	URL     string `json:"url,omitempty"`
	Address string `json:"address"`

	// Expected values from the input export, used for correctness scoring.
	Council           string `json:"council,omitempty"`
	ElectorateState   string `json:"electorate_state,omitempty"`
	ElectorateFederal string `json:"electorate_federal,omitempty"`

	ErrorMessage string `json:"error_message"`
	HasError     bool   `json:"has_error"`

	CouncilScraped         string `json:"council_scraped"`
	ElectorateStateScraped string `json:"electorate_state_scraped"`
	IsCouncilCorrect       bool   `json:"is_council_correct"`
	ScrapedText            string `json:"scraped_text"`

	// CouncilInSACommunity is the council shown on the organisation's
	// SA Community page, when that lookup ran.
	CouncilInSACommunity string `json:"council_in_sacommunity_website,omitempty"`
}

// Key returns the subject identifier used to detect already-processed
// records: the org id, else the URL, else the address.
func (r ScrapeRecord) Key() string {
	switch {
	case r.OrgID != "":
		return r.OrgID
	case r.URL != "":
		return r.URL
	default:
		return r.Address
	}
}

// SetError marks the record as failed with msg.
func (r *ScrapeRecord) SetError(msg string) {
	r.HasError = true
	r.ErrorMessage = msg
}

// NeedsRetry is the default retry predicate: the lookup page reported no
// results, or the lookup failed for a non-blank address.
func (r ScrapeRecord) NeedsRetry() bool {
	if strings.HasPrefix(r.ScrapedText, NoResultsPrefix) {
		return true
	}
	return r.HasError && strings.TrimSpace(r.Address) != ""
}

// LinkCheckResult groups the responses gathered for one base URL: the base
// page itself first, then every absolute link found on it.
type LinkCheckResult struct {
	BaseURL   string          `json:"base_url"`
	Responses []FetchResponse `json:"responses"`
}

// Key returns the base URL.
func (r LinkCheckResult) Key() string { return r.BaseURL }

// Statuses flattens the result into one row per response.
func (r LinkCheckResult) Statuses() []LinkStatus {
	rows := make([]LinkStatus, 0, len(r.Responses))
	for _, resp := range r.Responses {
		rows = append(rows, LinkStatus{
			BaseURL:      r.BaseURL,
			URL:          resp.URL,
			StatusCode:   resp.StatusCode,
			ErrorName:    resp.ErrorName,
			ErrorMessage: resp.ErrorMessage,
			Engine:       resp.Engine,
		})
	}
	return rows
}

// BatchSummary is the payload of the batch.completed webhook event.
type BatchSummary struct {
	Job       string `json:"job"`
	LogPath   string `json:"log_path,omitempty"`
	Total     int    `json:"total"`
	Skipped   int    `json:"skipped"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}
