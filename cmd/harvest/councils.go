package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/tabular"
)

var (
	councilsExport string
	councilsLog    string
	councilsLimit  int

	retryFrom string
	retryTo   string

	addressesURLs   string
	addressesExport string
	addressesLog    string
)

var councilsCmd = &cobra.Command{
	Use:   "councils",
	Short: "Look up the council of every organisation in a CU export",
	Long: `Reads the CU export CSV, searches the council map for each organisation's
address and appends one record per organisation to the log. Organisations
already in the log are skipped, so an interrupted run can simply be
started again.

Example:
  harvest councils --export cu_export.csv --log data/councils.jsonl`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rows, err := tabular.ReadCUExport(councilsExport)
		if err != nil {
			return err
		}
		if councilsLimit > 0 && councilsLimit < len(rows) {
			rows = rows[:councilsLimit]
		}
		recs, err := newCouncilService(cmd.Context(), cfg).ScrapeCouncils(cmd.Context(), rows, councilsLog)
		if err != nil {
			return err
		}
		reportCouncils(cmd, recs)
		return nil
	},
}

var councilsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Rebuild a councils log, looking up failed records again",
	Long: `Copies every record of --from into --to. Records that found no results or
failed for a non-blank address are looked up again; all others are copied
unchanged. Records already in --to are left alone.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		recs, err := newCouncilService(cmd.Context(), cfg).RetryCouncils(cmd.Context(), retryFrom, retryTo)
		if err != nil {
			return err
		}
		reportCouncils(cmd, recs)
		return nil
	},
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Read the address and council from SA Community organisation pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := newCouncilService(cmd.Context(), cfg)

		var urls []string
		switch {
		case addressesURLs != "":
			lines, err := tabular.ReadLines(addressesURLs)
			if err != nil {
				return err
			}
			urls = lines
		case addressesExport != "":
			rows, err := tabular.ReadCUExport(addressesExport)
			if err != nil {
				return err
			}
			for _, row := range rows {
				urls = append(urls, s.OrgURL(row.ID))
			}
		default:
			return fmt.Errorf("one of --urls or --export is required")
		}

		recs, err := s.FindAddresses(cmd.Context(), urls, addressesLog)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d pages read\n", len(recs))
		return nil
	},
}

func reportCouncils(cmd *cobra.Command, recs []models.ScrapeRecord) {
	var failed, correct, retry int
	for _, r := range recs {
		switch {
		case r.HasError:
			failed++
		case r.IsCouncilCorrect:
			correct++
		}
		if r.NeedsRetry() {
			retry++
		}
	}
	slog.Info("councils: done", "records", len(recs), "failed", failed, "correct", correct, "need_retry", retry)
	fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d correct, %d failed, %d need retry\n", len(recs), correct, failed, retry)
}

func init() {
	f := councilsCmd.Flags()
	f.StringVar(&councilsExport, "export", "", "CU export CSV (required)")
	f.StringVar(&councilsLog, "log", "councils.jsonl", "result log to append to")
	f.IntVar(&councilsLimit, "limit", 0, "only process the first N rows")
	_ = councilsCmd.MarkFlagRequired("export")

	rf := councilsRetryCmd.Flags()
	rf.StringVar(&retryFrom, "from", "", "finished councils log (required)")
	rf.StringVar(&retryTo, "to", "", "new log to write (required)")
	_ = councilsRetryCmd.MarkFlagRequired("from")
	_ = councilsRetryCmd.MarkFlagRequired("to")
	councilsCmd.AddCommand(councilsRetryCmd)

	af := addressesCmd.Flags()
	af.StringVar(&addressesURLs, "urls", "", "file with one organisation page URL per line")
	af.StringVar(&addressesExport, "export", "", "CU export CSV; pages are built from ID_19")
	af.StringVar(&addressesLog, "log", "addresses.jsonl", "result log to append to")

	rootCmd.AddCommand(councilsCmd, addressesCmd)
}
