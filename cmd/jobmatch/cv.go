package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/cvid"
	"github.com/jonathan/jobmatch/internal/observability"
)

var cvCmd = &cobra.Command{
	Use:   "cv",
	Short: "Manage CV versions",
	Long: `A CV version is identified by a key derived from the file's content, so
editing a CV starts a fresh set of matches while re-registering the same file
is a no-op.`,
}

var cvKeyCmd = &cobra.Command{
	Use:   "key <file>",
	Short: "Print the key of a CV file without registering it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCVKey,
}

var cvRegisterCmd = &cobra.Command{
	Use:   "register <file>",
	Short: "Register a CV file and print its key",
	Args:  cobra.ExactArgs(1),
	RunE:  runCVRegister,
}

var cvListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered CV versions",
	Args:  cobra.NoArgs,
	RunE:  runCVList,
}

var (
	cvSummaryFile string
)

func init() {
	cvRegisterCmd.Flags().StringVar(&cvSummaryFile, "summary-file", "", "Text file with the CV summary used for scoring")

	cvCmd.AddCommand(cvKeyCmd, cvRegisterCmd, cvListCmd)
	rootCmd.AddCommand(cvCmd)
}

func runCVKey(cmd *cobra.Command, args []string) error {
	key, err := cvid.GenerateKey(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runCVRegister(cmd *cobra.Command, args []string) error {
	summary, err := readSummary(cvSummaryFile)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cv, err := a.cvs.GetOrCreate(ctx, args[0], summary, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cv.CVKey)
	return nil
}

func runCVList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.db.ListCVVersions(ctx)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintCVVersions(versions)
	return nil
}

// readSummary returns the trimmed content of path, or nil when path is empty.
func readSummary(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, fmt.Errorf("summary file %s is empty", path)
	}
	return &s, nil
}
