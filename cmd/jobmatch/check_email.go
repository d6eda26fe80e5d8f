package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/emailgate"
	"github.com/jonathan/jobmatch/internal/observability"
)

var checkEmailCmd = &cobra.Command{
	Use:   "check-email <address>...",
	Short: "Classify contact emails as personal, generic or invalid",
	Long: `Classifies each address by its local part. Generic mailboxes such as jobs@
or hr@ are flagged; addresses that are not syntactically valid are invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckEmail,
}

func init() {
	rootCmd.AddCommand(checkEmailCmd)
}

func runCheckEmail(cmd *cobra.Command, args []string) error {
	batch := emailgate.AssessBatch(args)
	observability.NewPrinter(cmd.OutOrStdout()).PrintEmailAssessments(batch)
	return nil
}
