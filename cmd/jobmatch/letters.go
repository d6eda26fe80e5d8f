package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/observability"
)

var lettersCmd = &cobra.Command{
	Use:   "letters <job-match-id>...",
	Short: "Draft motivation letters for job matches",
	Long: `Fetches the detail page of each match, drafts a motivation letter with the
LLM and stores it with the posting's contact data.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLetters,
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge <job-match-id>...",
	Short: "Queue applications for job matches",
	Long: `Joins each match with its letter and contact data and writes a pending
application to the outbound queue. Matches without a usable contact email or
letter are reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBridge,
}

var (
	bridgeSkipDuplicates bool
)

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeSkipDuplicates, "skip-duplicates", true, "Skip matches with the same title and company as one already in the batch")

	rootCmd.AddCommand(lettersCmd)
	rootCmd.AddCommand(bridgeCmd)
}

func runLetters(cmd *cobra.Command, args []string) error {
	ids, err := parseMatchIDs(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, runnerOptions{letters: true})
	if err != nil {
		return err
	}

	report, err := runner.GenerateLetters(ctx, ids, progressPrinter(cmd.ErrOrStderr()))
	if report != nil {
		observability.NewPrinter(cmd.OutOrStdout()).PrintItemReport("MOTIVATION LETTERS", "Written", report.Written, report.Failed, report.Errors)
	}
	return err
}

func runBridge(cmd *cobra.Command, args []string) error {
	ids, err := parseMatchIDs(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, runnerOptions{queue: true})
	if err != nil {
		return err
	}

	res, err := runner.QueueApplications(ctx, ids, bridge.Options{SkipDuplicates: bridgeSkipDuplicates})
	observability.NewPrinter(cmd.OutOrStdout()).PrintBatch(res)
	return err
}

// parseMatchIDs parses job match ids, dropping repeats.
func parseMatchIDs(args []string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(args))
	ids := make([]uuid.UUID, 0, len(args))
	for _, raw := range args {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid job match id %q: %w", raw, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
