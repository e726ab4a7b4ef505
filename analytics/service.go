package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/harvest/models"
)

// Dimension and metric names used by the directory reports.
const (
	DimDatasetID   = "customEvent:DatasetID"
	DimLandingPage = "landingPage"
	DimEventName   = "eventName"
	DimAge         = "userAgeBracket"
	DimGender      = "userGender"
	DimSource      = "sessionSource"
	DimMedium      = "sessionMedium"

	MetricSessions = "sessions"

	// trackedEvent is the event the directory fires for every tracked page.
	trackedEvent = "trackCustomData"
)

// Query selects the sessions a report covers.
type Query struct {
	// DatasetID restricts to one dataset when set.
	DatasetID string
	Start     time.Time
	End       time.Time
	// OrganisationID restricts to landing pages under /org/<id> when set.
	OrganisationID string
}

// Filter builds the dimension filter for q. The tracked event is always
// required.
func (q Query) Filter() *FilterExpression {
	exprs := []FilterExpression{StringMatch(DimEventName, trackedEvent, MatchExact)}
	if id := strings.TrimSpace(q.DatasetID); id != "" {
		exprs = append(exprs, StringMatch(DimDatasetID, id, MatchExact))
	}
	if id := strings.TrimSpace(q.OrganisationID); id != "" {
		exprs = append(exprs, StringMatch(DimLandingPage, "/org/"+id, MatchBeginsWith))
	}
	return And(exprs...)
}

// OrgSessions is the session total of one organisation.
type OrgSessions struct {
	OrganisationID string `json:"organisation_id" csv:"organisation_id"`
	Sessions       int    `json:"sessions_count" csv:"sessions_count"`
}

// Service shapes directory reports for one property.
type Service struct {
	reporter    Reporter
	propertyID  string
	concurrency int
}

// NewService creates a Service.
func NewService(r Reporter, propertyID string, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{reporter: r, propertyID: propertyID, concurrency: concurrency}
}

// GetData runs a report with the given dimensions and metrics over q.
func (s *Service) GetData(ctx context.Context, q Query, dimensions, metrics []string) ([]Row, error) {
	return s.reporter.RunReport(ctx, s.propertyID, ReportRequest{
		Dimensions: dimensions,
		Metrics:    metrics,
		StartDate:  q.Start,
		EndDate:    q.End,
		Filter:     q.Filter(),
	})
}

// SessionsByLandingPage reports sessions per dataset and landing page.
// extraDimensions (e.g. "eventName", "date") and extraMetrics
// (e.g. "eventCount") are appended to the report.
func (s *Service) SessionsByLandingPage(ctx context.Context, q Query, extraDimensions, extraMetrics []string) ([]Row, error) {
	dims := append([]string{DimDatasetID, DimLandingPage}, extraDimensions...)
	metrics := append([]string{MetricSessions}, extraMetrics...)
	return s.GetData(ctx, q, dims, metrics)
}

// SessionsByOrganisationID totals the sessions of every landing page
// under the organisation's page, across datasets.
func (s *Service) SessionsByOrganisationID(ctx context.Context, start, end time.Time, orgID string) (OrgSessions, error) {
	rows, err := s.SessionsByLandingPage(ctx, Query{Start: start, End: end, OrganisationID: orgID}, nil, nil)
	if err != nil {
		return OrgSessions{}, err
	}
	total := 0
	for _, row := range rows {
		v, ok := row[MetricSessions]
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return OrgSessions{}, models.NewScrapeError(models.ErrCodeAnalytics,
				fmt.Sprintf("sessions value %q for organisation %s", v, orgID), err)
		}
		total += n
	}
	return OrgSessions{OrganisationID: orgID, Sessions: total}, nil
}

// SessionsByOrganisationIDs runs SessionsByOrganisationID for every id
// under the concurrency cap. Results keep the order of ids.
func (s *Service) SessionsByOrganisationIDs(ctx context.Context, start, end time.Time, ids []string) ([]OrgSessions, error) {
	out := make([]OrgSessions, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			slog.Info("analytics: sessions by organisation",
				"progress", fmt.Sprintf("%d of %d", i+1, len(ids)), "organisation_id", id)
			res, err := s.SessionsByOrganisationID(gctx, start, end, id)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) sessionsBy(ctx context.Context, dim, datasetID string, start, end time.Time) ([]Row, error) {
	return s.GetData(ctx, Query{DatasetID: datasetID, Start: start, End: end},
		[]string{DimDatasetID, dim}, []string{MetricSessions})
}

// SessionsByAge reports sessions per dataset and age bracket.
func (s *Service) SessionsByAge(ctx context.Context, datasetID string, start, end time.Time) ([]Row, error) {
	return s.sessionsBy(ctx, DimAge, datasetID, start, end)
}

// SessionsByGender reports sessions per dataset and gender.
func (s *Service) SessionsByGender(ctx context.Context, datasetID string, start, end time.Time) ([]Row, error) {
	return s.sessionsBy(ctx, DimGender, datasetID, start, end)
}

// SessionsBySource reports sessions per dataset and session source.
func (s *Service) SessionsBySource(ctx context.Context, datasetID string, start, end time.Time) ([]Row, error) {
	return s.sessionsBy(ctx, DimSource, datasetID, start, end)
}

// SessionsByMedium reports sessions per dataset and session medium.
func (s *Service) SessionsByMedium(ctx context.Context, datasetID string, start, end time.Time) ([]Row, error) {
	return s.sessionsBy(ctx, DimMedium, datasetID, start, end)
}
