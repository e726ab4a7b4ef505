package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/linkcheck"
	"github.com/use-agent/harvest/tabular"
)

var (
	linkcheckURLs   string
	linkcheckExport string
	linkcheckLog    string
	linkcheckOut    string
)

var linkcheckCmd = &cobra.Command{
	Use:   "linkcheck",
	Short: "Check the status of every link on a set of pages",
	Long: `Fetches each base page and, when it loads, every absolute link on it.
Results are appended to --log per base page; --out receives one CSV row per
response of this run.

Example:
  harvest linkcheck --export cu_export.csv --out data/link_statuses.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var bases []string
		switch {
		case linkcheckURLs != "":
			lines, err := tabular.ReadLines(linkcheckURLs)
			if err != nil {
				return err
			}
			bases = lines
		case linkcheckExport != "":
			rows, err := tabular.ReadCUExport(linkcheckExport)
			if err != nil {
				return err
			}
			bases = linkcheck.OrgURLs(rows, newCouncilService(cmd.Context(), cfg).OrgURL)
		default:
			return fmt.Errorf("one of --urls or --export is required")
		}

		cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		defer cc.Close()

		checker := linkcheck.New(newDispatcher(cfg, newScraper(cfg)), cc, cfg.Batch.MaxConcurrent)
		checker.OnComplete = completionHook(cmd.Context(), cfg)

		rows, err := checker.CheckURLs(cmd.Context(), bases, linkcheckLog)
		if err != nil {
			return err
		}
		broken := 0
		for _, r := range rows {
			if r.StatusCode != 200 {
				broken++
			}
		}
		if linkcheckOut != "" {
			if err := tabular.WriteCSV(linkcheckOut, rows); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d links checked, %d not OK\n", len(rows), broken)
		return nil
	},
}

func init() {
	f := linkcheckCmd.Flags()
	f.StringVar(&linkcheckURLs, "urls", "", "file with one base URL per line")
	f.StringVar(&linkcheckExport, "export", "", "CU export CSV; base pages are built from ID_19")
	f.StringVar(&linkcheckLog, "log", "linkcheck.jsonl", "result log to append to")
	f.StringVar(&linkcheckOut, "out", "", "CSV file for the statuses of this run")
	rootCmd.AddCommand(linkcheckCmd)
}
