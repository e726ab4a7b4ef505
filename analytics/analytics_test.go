package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
)

func TestAPIReporter_RunReport(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/properties/42:runReport", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"dimensionHeaders":[{"name":"customEvent:DatasetID"},{"name":"landingPage"}],
			"metricHeaders":[{"name":"sessions","type":"TYPE_INTEGER"}],
			"rows":[
				{"dimensionValues":[{"value":"ds1"},{"value":"/org/1-Club"}],"metricValues":[{"value":"12"}]},
				{"dimensionValues":[{"value":"ds1"},{"value":"/org/2"}],"metricValues":[{"value":"3"}]}
			],
			"rowCount":2}`)
	}))
	defer srv.Close()

	r := NewAPIReporterWithClient(srv.Client(), config.AnalyticsConfig{BaseURL: srv.URL + "/v1beta", Timeout: 5 * time.Second})
	q := Query{DatasetID: "ds1", Start: start, End: end}
	rows, err := r.RunReport(context.Background(), "42", ReportRequest{
		Dimensions: []string{DimDatasetID, DimLandingPage},
		Metrics:    []string{MetricSessions},
		StartDate:  start,
		EndDate:    end,
		Filter:     q.Filter(),
	})
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{"customEvent:DatasetID": "ds1", "landingPage": "/org/1-Club", "sessions": "12"},
		{"customEvent:DatasetID": "ds1", "landingPage": "/org/2", "sessions": "3"},
	}, rows)

	assert.Equal(t, []any{map[string]any{"startDate": "2024-01-01", "endDate": "2024-03-31"}}, got["dateRanges"])
	assert.EqualValues(t, 250000, got["limit"])
	assert.Equal(t, []any{map[string]any{"name": "customEvent:DatasetID"}, map[string]any{"name": "landingPage"}}, got["dimensions"])

	filter := got["dimensionFilter"].(map[string]any)
	exprs := filter["andGroup"].(map[string]any)["expressions"].([]any)
	require.Len(t, exprs, 2)
	first := exprs[0].(map[string]any)["filter"].(map[string]any)
	assert.Equal(t, "eventName", first["fieldName"])
	assert.Equal(t, map[string]any{"value": "trackCustomData", "matchType": "EXACT"}, first["stringFilter"])
}

func TestAPIReporter_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "403") {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"no access to property","status":"PERMISSION_DENIED"}}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"Field userAge is not a valid dimension.","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	r := NewAPIReporterWithClient(srv.Client(), config.AnalyticsConfig{BaseURL: srv.URL})

	_, err := r.RunReport(context.Background(), "1", ReportRequest{StartDate: start, EndDate: end})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeAnalytics))
	assert.Contains(t, err.Error(), "not a valid dimension")

	_, err = r.RunReport(context.Background(), "403", ReportRequest{StartDate: start, EndDate: end})
	assert.True(t, models.IsCode(err, models.ErrCodeUnauthorized))

	_, err = r.RunReport(context.Background(), "", ReportRequest{})
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
}

func TestNewAPIReporter_BadCredentials(t *testing.T) {
	_, err := NewAPIReporter(context.Background(), config.AnalyticsConfig{})
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))

	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"unknown"}`), 0o600))
	_, err = NewAPIReporter(context.Background(), config.AnalyticsConfig{CredentialsFile: path})
	assert.True(t, models.IsCode(err, models.ErrCodeUnauthorized))
}

func TestQueryFilter(t *testing.T) {
	tests := []struct {
		name   string
		q      Query
		fields []string
	}{
		{"event only", Query{}, []string{"eventName"}},
		{"dataset", Query{DatasetID: "ds1"}, []string{"eventName", "customEvent:DatasetID"}},
		{"organisation", Query{OrganisationID: "77"}, []string{"eventName", "landingPage"}},
		{"both", Query{DatasetID: "ds1", OrganisationID: "77"}, []string{"eventName", "customEvent:DatasetID", "landingPage"}},
		{"blank ids", Query{DatasetID: " ", OrganisationID: ""}, []string{"eventName"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.q.Filter()
			require.NotNil(t, f.AndGroup)
			var fields []string
			for _, e := range f.AndGroup.Expressions {
				fields = append(fields, e.Filter.FieldName)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}

	f := Query{OrganisationID: "77"}.Filter()
	assert.Equal(t, &StringFilter{Value: "/org/77", MatchType: MatchBeginsWith}, f.AndGroup.Expressions[1].Filter.StringFilter)
}

// fakeReporter records every request and answers with rows(req).
type fakeReporter struct {
	mu       sync.Mutex
	requests []ReportRequest
	rows     func(req ReportRequest) ([]Row, error)
}

func (f *fakeReporter) RunReport(_ context.Context, propertyID string, req ReportRequest) ([]Row, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if propertyID != "p1" {
		return nil, fmt.Errorf("unexpected property %q", propertyID)
	}
	return f.rows(req)
}

func orgFromFilter(req ReportRequest) string {
	for _, e := range req.Filter.AndGroup.Expressions {
		if e.Filter.FieldName == DimLandingPage {
			return strings.TrimPrefix(e.Filter.StringFilter.Value, "/org/")
		}
	}
	return ""
}

func TestSessionsByLandingPage_Dimensions(t *testing.T) {
	f := &fakeReporter{rows: func(ReportRequest) ([]Row, error) { return nil, nil }}
	s := NewService(f, "p1", 1)

	_, err := s.SessionsByLandingPage(context.Background(), Query{DatasetID: "ds"}, []string{"date"}, []string{"eventCount"})
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, []string{DimDatasetID, DimLandingPage, "date"}, f.requests[0].Dimensions)
	assert.Equal(t, []string{MetricSessions, "eventCount"}, f.requests[0].Metrics)
}

func TestSessionsByOrganisationIDs(t *testing.T) {
	f := &fakeReporter{rows: func(req ReportRequest) ([]Row, error) {
		switch orgFromFilter(req) {
		case "1":
			return []Row{{"sessions": "5"}, {"sessions": "7"}}, nil
		case "2":
			return []Row{{"sessions": "1"}, {"landingPage": "/org/2"}}, nil
		default:
			return nil, nil
		}
	}}
	s := NewService(f, "p1", 2)

	got, err := s.SessionsByOrganisationIDs(context.Background(), start, end, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []OrgSessions{
		{OrganisationID: "1", Sessions: 12},
		{OrganisationID: "2", Sessions: 1},
		{OrganisationID: "3", Sessions: 0},
	}, got)
	for _, req := range f.requests {
		assert.Equal(t, start, req.StartDate)
		assert.Equal(t, end, req.EndDate)
	}
}

func TestSessionsByOrganisationID_BadValue(t *testing.T) {
	f := &fakeReporter{rows: func(ReportRequest) ([]Row, error) { return []Row{{"sessions": "many"}}, nil }}
	_, err := NewService(f, "p1", 1).SessionsByOrganisationID(context.Background(), start, end, "9")
	assert.True(t, models.IsCode(err, models.ErrCodeAnalytics))
}

func TestSessionsByOrganisationIDs_StopsOnError(t *testing.T) {
	f := &fakeReporter{rows: func(ReportRequest) ([]Row, error) { return nil, fmt.Errorf("quota exceeded") }}
	_, err := NewService(f, "p1", 2).SessionsByOrganisationIDs(context.Background(), start, end, []string{"1", "2"})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestSaveRun(t *testing.T) {
	f := &fakeReporter{rows: func(req ReportRequest) ([]Row, error) {
		dim := req.Dimensions[1]
		return []Row{{DimDatasetID: "ds1", dim: "v-" + dim, MetricSessions: "4"}}, nil
	}}
	s := NewService(f, "p1", 1)
	root := t.TempDir()

	runID, err := s.SaveRun(context.Background(), root, Query{DatasetID: "ds1", Start: start, End: end})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.Len(t, f.requests, 5)

	data, err := os.ReadFile(filepath.Join(RunDir(root, runID), "gender.csv"))
	require.NoError(t, err)
	assert.Equal(t, "customEvent:DatasetID,userGender,sessions\nds1,v-userGender,4\n", string(data))

	for _, m := range []string{ModuleLandingPage, ModuleAge, ModuleSource, ModuleMedium} {
		_, err := os.Stat(filepath.Join(root, "data", runID, m+".csv"))
		assert.NoError(t, err, m)
	}
}
