package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/observability"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show application pipeline counts per status",
	Long: `Shows how many matches are in each application status, with active,
closed and overall totals. Matches never moved are counted as MATCHED.`,
	RunE: runStats,
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List applications stuck in PREPARING",
	Long: `Lists applications that have been PREPARING for more than seven days and
sends the list to Telegram when a bot is configured.`,
	RunE: runStale,
}

var (
	statsCVKey  string
	statsScrape bool
	statsSearch string
)

func init() {
	statsCmd.Flags().StringVar(&statsCVKey, "cv-key", "", "Only count matches of this CV version")
	statsCmd.Flags().BoolVar(&statsScrape, "scrape", false, "Show crawl history instead of application counts")
	statsCmd.Flags().StringVarP(&statsSearch, "search-term", "s", "", "With --scrape, only this search term")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(staleCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if statsScrape {
		stats, err := a.db.ScrapeStats(ctx, statsSearch)
		if err != nil {
			return err
		}
		printer.PrintScrapeStats(stats)
		return nil
	}

	stats, err := a.lifecycle.PipelineStats(ctx, statsCVKey)
	if err != nil {
		return err
	}
	printer.PrintPipelineStats(stats)
	return nil
}

func runStale(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	apps, err := a.lifecycle.ListStale(ctx)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintStale(apps)
	return nil
}
