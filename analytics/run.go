package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/tabular"
)

// Run modules, each saved as <module>.csv.
const (
	ModuleLandingPage = "landing_page"
	ModuleAge         = "age"
	ModuleGender      = "gender"
	ModuleSource      = "source"
	ModuleMedium      = "medium"
)

// RunDir returns the directory that holds the files of a run.
func RunDir(root, runID string) string {
	return filepath.Join(root, "data", runID)
}

// SaveRun fetches every module report for q and writes them under a new
// run directory in root. It returns the run id.
func (s *Service) SaveRun(ctx context.Context, root string, q Query) (string, error) {
	runID := uuid.NewString()
	dir := RunDir(root, runID)
	slog.Info("analytics: saving run", "run_id", runID, "dir", dir)

	type module struct {
		name   string
		column string
		fetch  func() ([]Row, error)
	}
	modules := []module{
		{ModuleLandingPage, DimLandingPage, func() ([]Row, error) { return s.SessionsByLandingPage(ctx, q, nil, nil) }},
		{ModuleAge, DimAge, func() ([]Row, error) { return s.SessionsByAge(ctx, q.DatasetID, q.Start, q.End) }},
		{ModuleGender, DimGender, func() ([]Row, error) { return s.SessionsByGender(ctx, q.DatasetID, q.Start, q.End) }},
		{ModuleSource, DimSource, func() ([]Row, error) { return s.SessionsBySource(ctx, q.DatasetID, q.Start, q.End) }},
		{ModuleMedium, DimMedium, func() ([]Row, error) { return s.SessionsByMedium(ctx, q.DatasetID, q.Start, q.End) }},
	}

	for _, m := range modules {
		slog.Info("analytics: fetching module", "run_id", runID, "module", m.name)
		rows, err := m.fetch()
		if err != nil {
			return runID, fmt.Errorf("module %s: %w", m.name, err)
		}
		path := filepath.Join(dir, m.name+".csv")
		header := []string{DimDatasetID, m.column, MetricSessions}
		if err := tabular.WriteRows(path, header, toMaps(rows)); err != nil {
			return runID, models.NewScrapeError(models.ErrCodeStorage, "save module "+m.name, err)
		}
	}
	return runID, nil
}

func toMaps(rows []Row) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
