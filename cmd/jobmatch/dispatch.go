package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/dispatch"
	"github.com/jonathan/jobmatch/internal/observability"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Process pending applications in the outbound queue",
	Long: `Takes pending applications from the queue, rechecks the contact email and
hands each one to the transport. Applications are marked sent, failed or
skipped; transient failures stay pending for the next pass.

The built-in transport logs each application instead of sending it.`,
	RunE: runDispatch,
}

var (
	dispatchLimit int
)

func init() {
	dispatchCmd.Flags().IntVarP(&dispatchLimit, "limit", "n", 20, "Maximum applications to process")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	if dispatchLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", dispatchLimit)
	}

	ctx, cancel := commandContext(0)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if a.gcs != nil {
			_ = a.gcs.Close()
		}
	}()

	q, err := a.queueStore(ctx)
	if err != nil {
		return err
	}

	transport := dispatch.LogTransport{Logger: log.New(cmd.ErrOrStderr(), "", 0)}
	d := dispatch.New(q, transport, logger)
	res, err := d.Run(ctx, dispatchLimit, func(done, total int) {
		fmt.Fprintf(cmd.ErrOrStderr(), "dispatched %d of %d\n", done, total)
	})
	observability.NewPrinter(cmd.OutOrStdout()).PrintDispatch(res)
	return err
}
