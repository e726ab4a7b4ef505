package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/analytics"
	"github.com/use-agent/harvest/tabular"
)

var (
	gaStart   string
	gaEnd     string
	gaDataset string
	gaExport  string
	gaOut     string
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query the analytics property for directory sessions",
}

var analyticsSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Total sessions per organisation in a CU export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, end, err := dateRange(gaStart, gaEnd)
		if err != nil {
			return err
		}
		rows, err := tabular.ReadCUExport(gaExport)
		if err != nil {
			return err
		}
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}

		svc, err := newAnalyticsService(cmd)
		if err != nil {
			return err
		}
		sessions, err := svc.SessionsByOrganisationIDs(cmd.Context(), start, end, ids)
		if err != nil {
			return err
		}
		if gaOut == "" {
			return printJSON(cmd, sessions)
		}
		return tabular.WriteCSV(gaOut, sessions)
	},
}

var analyticsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save landing page, age, gender, source and medium reports as a new run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, end, err := dateRange(gaStart, gaEnd)
		if err != nil {
			return err
		}
		svc, err := newAnalyticsService(cmd)
		if err != nil {
			return err
		}
		runID, err := svc.SaveRun(cmd.Context(), cfg.Storage.Root, analytics.Query{
			DatasetID: gaDataset,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s saved to %s\n", runID, analytics.RunDir(cfg.Storage.Root, runID))
		return nil
	},
}

func newAnalyticsService(cmd *cobra.Command) (*analytics.Service, error) {
	r, err := analytics.NewAPIReporter(cmd.Context(), cfg.Analytics)
	if err != nil {
		return nil, err
	}
	return analytics.NewService(r, cfg.Analytics.PropertyID, cfg.Analytics.Concurrency), nil
}

// dateRange parses YYYY-MM-DD bounds. An empty end means today.
func dateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", start, err)
	}
	e := time.Now().UTC().Truncate(24 * time.Hour)
	if end != "" {
		if e, err = time.Parse(time.DateOnly, end); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", end, err)
		}
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", e.Format(time.DateOnly), s.Format(time.DateOnly))
	}
	return s, e, nil
}

func init() {
	for _, c := range []*cobra.Command{analyticsSessionsCmd, analyticsSaveCmd} {
		c.Flags().StringVar(&gaStart, "start", "", "first day, YYYY-MM-DD (required)")
		c.Flags().StringVar(&gaEnd, "end", "", "last day, YYYY-MM-DD (default today)")
		_ = c.MarkFlagRequired("start")
	}
	analyticsSessionsCmd.Flags().StringVar(&gaExport, "export", "", "CU export CSV (required)")
	analyticsSessionsCmd.Flags().StringVar(&gaOut, "out", "", "CSV file to write; prints JSON when empty")
	_ = analyticsSessionsCmd.MarkFlagRequired("export")
	analyticsSaveCmd.Flags().StringVar(&gaDataset, "dataset", "", "restrict to one dataset id")

	analyticsCmd.AddCommand(analyticsSessionsCmd, analyticsSaveCmd)
	rootCmd.AddCommand(analyticsCmd)
}
