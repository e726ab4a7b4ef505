// Package analytics queries the GA4 Data API for session counts of the
// community directory and saves them as CSV runs.
package analytics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

const (
	readonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

	// maxRows is the largest page the Data API returns.
	maxRows = 250000

	dateLayout = "2006-01-02"
)

// Row maps dimension and metric names to their values in one report row.
type Row map[string]string

// ReportRequest describes one report.
type ReportRequest struct {
	Dimensions []string
	Metrics    []string
	StartDate  time.Time
	EndDate    time.Time
	Filter     *FilterExpression
}

// Reporter runs reports against a property.
type Reporter interface {
	RunReport(ctx context.Context, propertyID string, req ReportRequest) ([]Row, error)
}

// FilterExpression is the Data API dimension filter. Exactly one field
// is set.
type FilterExpression struct {
	AndGroup *FilterExpressionList `json:"andGroup,omitempty"`
	Filter   *Filter               `json:"filter,omitempty"`
}

type FilterExpressionList struct {
	Expressions []FilterExpression `json:"expressions"`
}

type Filter struct {
	FieldName    string        `json:"fieldName"`
	StringFilter *StringFilter `json:"stringFilter,omitempty"`
}

// Match types of a StringFilter.
const (
	MatchExact      = "EXACT"
	MatchBeginsWith = "BEGINS_WITH"
)

type StringFilter struct {
	Value     string `json:"value"`
	MatchType string `json:"matchType"`
}

// StringMatch returns a filter expression on one field.
func StringMatch(field, value, matchType string) FilterExpression {
	return FilterExpression{Filter: &Filter{
		FieldName:    field,
		StringFilter: &StringFilter{Value: value, MatchType: matchType},
	}}
}

// And combines exprs into one expression.
func And(exprs ...FilterExpression) *FilterExpression {
	return &FilterExpression{AndGroup: &FilterExpressionList{Expressions: exprs}}
}

type named struct {
	Name string `json:"name"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type runReportBody struct {
	Dimensions      []named           `json:"dimensions"`
	Metrics         []named           `json:"metrics"`
	DateRanges      []dateRange       `json:"dateRanges"`
	DimensionFilter *FilterExpression `json:"dimensionFilter,omitempty"`
	Limit           int64             `json:"limit"`
}

type value struct {
	Value string `json:"value"`
}

type runReportResult struct {
	DimensionHeaders []named `json:"dimensionHeaders"`
	MetricHeaders    []named `json:"metricHeaders"`
	Rows             []struct {
		DimensionValues []value `json:"dimensionValues"`
		MetricValues    []value `json:"metricValues"`
	} `json:"rows"`
	RowCount int `json:"rowCount"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// APIReporter calls the Data API runReport method over HTTP.
type APIReporter struct {
	client *resty.Client
}

// NewAPIReporter authenticates with the credentials file named in cfg.
// Both service-account keys and authorized-user files are accepted.
func NewAPIReporter(ctx context.Context, cfg config.AnalyticsConfig) (*APIReporter, error) {
	if cfg.CredentialsFile == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "analytics credentials file is required", nil)
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalytics, "read credentials", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, readonlyScope)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeUnauthorized, "parse credentials", err)
	}
	return NewAPIReporterWithClient(oauth2.NewClient(ctx, creds.TokenSource), cfg), nil
}

// NewAPIReporterWithClient uses hc as is; it must add authorization
// itself.
func NewAPIReporterWithClient(hc *http.Client, cfg config.AnalyticsConfig) *APIReporter {
	client := resty.NewWithClient(hc)
	client.SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetHeader("Content-Type", "application/json")
	return &APIReporter{client: client}
}

// RunReport runs req against properties/propertyID and returns every row.
func (r *APIReporter) RunReport(ctx context.Context, propertyID string, req ReportRequest) ([]Row, error) {
	if propertyID == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "analytics property id is required", nil)
	}

	body := runReportBody{
		Dimensions:      namesOf(req.Dimensions),
		Metrics:         namesOf(req.Metrics),
		DateRanges:      []dateRange{{StartDate: req.StartDate.Format(dateLayout), EndDate: req.EndDate.Format(dateLayout)}},
		DimensionFilter: req.Filter,
		Limit:           maxRows,
	}

	var result runReportResult
	var apiErr apiError
	res, err := r.client.R().
		SetContext(ctx).
		SetPathParam("property", propertyID).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/properties/{property}:runReport")
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalytics, "run report", err)
	}
	if res.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = res.Status()
		}
		code := models.ErrCodeAnalytics
		if res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden {
			code = models.ErrCodeUnauthorized
		}
		return nil, models.NewScrapeError(code, fmt.Sprintf("run report: %d %s", res.StatusCode(), msg), nil)
	}

	rows := make([]Row, 0, len(result.Rows))
	for _, raw := range result.Rows {
		row := make(Row, len(raw.DimensionValues)+len(raw.MetricValues))
		for i, v := range raw.DimensionValues {
			if i < len(result.DimensionHeaders) {
				row[result.DimensionHeaders[i].Name] = v.Value
			}
		}
		for i, v := range raw.MetricValues {
			if i < len(result.MetricHeaders) {
				row[result.MetricHeaders[i].Name] = v.Value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func namesOf(names []string) []named {
	out := make([]named, len(names))
	for i, n := range names {
		out[i] = named{Name: n}
	}
	return out
}
