package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/operations"
)

// StartCrawl runs Crawl in the background and returns the operation id to poll.
func (r *Runner) StartCrawl(cfg crawl.Config) string {
	return r.start(StepCrawl, func(ctx context.Context, progress ProgressCallback) (string, error) {
		report, err := r.Crawl(ctx, cfg, progress)
		if report == nil || report.Run == nil {
			return "", err
		}
		msg := fmt.Sprintf("%d new, %d duplicates, ended %s", report.Run.NewJobs, report.Run.DuplicateJobs, report.Run.EndReason)
		return msg, err
	})
}

// StartLetters runs GenerateLetters in the background.
func (r *Runner) StartLetters(ids []uuid.UUID) string {
	return r.start(StepLetters, func(ctx context.Context, progress ProgressCallback) (string, error) {
		report, err := r.GenerateLetters(ctx, ids, progress)
		if report == nil {
			return "", err
		}
		return fmt.Sprintf("%d written, %d failed", report.Written, report.Failed), err
	})
}

// StartQueue runs QueueApplications in the background.
func (r *Runner) StartQueue(ids []uuid.UUID, opts bridge.Options) string {
	return r.start(StepBridge, func(ctx context.Context, _ ProgressCallback) (string, error) {
		res, err := r.QueueApplications(ctx, ids, opts)
		if res == nil {
			return "", err
		}
		return fmt.Sprintf("%d queued, %d failed", res.Queued, res.Failed), err
	})
}

// start registers an operation and runs fn detached from any request context.
func (r *Runner) start(kind string, fn func(context.Context, ProgressCallback) (string, error)) string {
	board := r.deps.Board
	id := board.Start(kind)

	go func() {
		ctx := context.Background()
		progress := func(ev ProgressEvent) {
			_ = board.UpdateProgress(id, ev.Progress, operations.StatusRunning, ev.Message)
		}
		_ = board.UpdateProgress(id, 0, operations.StatusRunning, kind+" started")

		msg, err := fn(ctx, progress)
		if err != nil {
			r.logger.Printf("[PIPELINE] Operation %s (%s) failed: %v", id, kind, err)
			if r.deps.Notifier != nil {
				_ = r.deps.Notifier.NotifyError(ctx, kind, err)
			}
			if msg != "" {
				msg += ": "
			}
			_ = board.Complete(id, operations.StatusFailed, msg+err.Error())
			return
		}
		_ = board.Complete(id, operations.StatusSucceeded, msg)
	}()
	return id
}
