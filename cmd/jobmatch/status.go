package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/lifecycle"
	"github.com/jonathan/jobmatch/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show or change the application status of a job match",
}

var statusGetCmd = &cobra.Command{
	Use:   "get <job-match-id>",
	Short: "Show the status and notes of a job match",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatusGet,
}

var statusSetCmd = &cobra.Command{
	Use:   "set <job-match-id> <status>",
	Short: "Move a job match to a status",
	Long: `Moves a job match to one of MATCHED, INTERESTED, PREPARING, APPLIED,
INTERVIEW, OFFER, REJECTED or ARCHIVED. Any transition is allowed.`,
	Args: cobra.ExactArgs(2),
	RunE: runStatusSet,
}

var statusNoteCmd = &cobra.Command{
	Use:   "note <job-match-id> <note>...",
	Short: "Append a note to a job match",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runStatusNote,
}

var (
	statusNote string
)

func init() {
	statusSetCmd.Flags().StringVar(&statusNote, "note", "", "Note stored with the status change")

	statusCmd.AddCommand(statusGetCmd, statusSetCmd, statusNoteCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatusGet(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job match id %q: %w", args[0], err)
	}

	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.db.GetJobMatch(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("job match %s not found", id)
	}
	rec, err := a.lifecycle.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s at %s\n", m.Title, m.Company)
	observability.NewPrinter(cmd.OutOrStdout()).PrintApplication(id.String(), rec)
	return nil
}

func runStatusSet(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job match id %q: %w", args[0], err)
	}
	status, err := lifecycle.ParseStatus(args[1])
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

	var notes *string
	if cmd.Flags().Changed("note") {
		notes = &statusNote
	}
	ok, err := a.lifecycle.SetStatus(ctx, id, status, notes)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job match %s not found", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", id, status)
	return nil
}

func runStatusNote(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job match id %q: %w", args[0], err)
	}
	note := strings.Join(args[1:], " ")

	ctx, cancel := commandContext(defaultCommandTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.lifecycle.AddNote(ctx, id, note)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job match %s not found", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Note added to %s\n", id)
	return nil
}
