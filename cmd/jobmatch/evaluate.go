package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/observability"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score stored matches that have no score yet",
	Long: `Scores stored matches of one search term and CV version that were stored
without an evaluation, oldest first. Needs GEMINI_API_KEY or OPENAI_API_KEY
for the configured LLM provider.`,
	RunE: runEvaluate,
}

var (
	evaluateSearchTerm string
	evaluateCVKey      string
	evaluateLimit      int
)

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateSearchTerm, "search-term", "s", "", "Search term of the matches (required)")
	evaluateCmd.Flags().StringVar(&evaluateCVKey, "cv-key", "", "CV version of the matches (required)")
	evaluateCmd.Flags().IntVarP(&evaluateLimit, "limit", "n", 50, "Maximum matches to score")

	_ = evaluateCmd.MarkFlagRequired("search-term")
	_ = evaluateCmd.MarkFlagRequired("cv-key")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	if evaluateLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", evaluateLimit)
	}

	ctx, cancel := commandContext(0)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, runnerOptions{evaluate: true})
	if err != nil {
		return err
	}

	report, err := runner.EvaluatePending(ctx, evaluateSearchTerm, evaluateCVKey, evaluateLimit, progressPrinter(cmd.ErrOrStderr()))
	if report != nil {
		observability.NewPrinter(cmd.OutOrStdout()).PrintItemReport("EVALUATION", "Scored", report.Evaluated, report.Failed, report.Errors)
	}
	return err
}
