package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/cleaner"
)

var fetchFormat string

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch one page through the fallback chain",
	Long: `Tries each configured strategy in order and prints the response of the
first one that returns 200, or of the last one tried.

  --format json      the full response (default)
  --format html      only the page body
  --format markdown  the page body converted to markdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := newDispatcher(cfg, newScraper(cfg))
		resp, err := d.Dispatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch fetchFormat {
		case "html":
			fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
		case "markdown":
			md, err := cleaner.ToMarkdown(resp.Body, resp.URL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), md)
		default:
			if err := printJSON(cmd, resp); err != nil {
				return err
			}
		}
		if !resp.OK() {
			fmt.Fprintf(os.Stderr, "%s: %d %s\n", resp.Engine, resp.StatusCode, resp.ErrorName)
		}
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <url>",
	Short: "List the absolute links on a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := newDispatcher(cfg, newScraper(cfg))
		resp, err := d.Dispatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("fetch %s: %d %s: %s", args[0], resp.StatusCode, resp.ErrorName, resp.ErrorMessage)
		}
		links, err := cleaner.ExtractLinks(resp.Body)
		if err != nil {
			return err
		}
		for _, l := range cleaner.SortedLinks(links) {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "json", "json, html or markdown")
	rootCmd.AddCommand(fetchCmd, linksCmd)
}
