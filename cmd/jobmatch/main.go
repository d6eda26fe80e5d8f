// Package main provides the jobmatch CLI: crawl job boards, score and track
// matches, and queue applications.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "jobmatch",
	Short: "Job posting dedup, scoring and application tracking",
	Long: `jobmatch crawls job boards page by page, stops as soon as a page holds
only postings it has already stored, scores new postings against a CV and
tracks each match from MATCHED to a closed status.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json (environment variables override it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed log output")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
