// Package pipeline composes the crawl, evaluation, letter and queue steps into
// the runs started from the CLI and the server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/config"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/operations"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step     string `json:"step"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Progress int    `json:"progress"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Step names reported in ProgressEvent.Step and used as operation kinds.
const (
	StepCrawl    = "crawl"
	StepIngest   = "ingest"
	StepLetters  = "letters"
	StepBridge   = "bridge"
	StepEvaluate = "evaluate"
)

// CVRegistrar resolves a CV file to its registered version.
type CVRegistrar interface {
	GetOrCreate(ctx context.Context, path string, summary *string, metadata map[string]any) (*db.CVVersion, error)
}

// MatchReader loads job matches.
type MatchReader interface {
	GetJobMatch(ctx context.Context, id uuid.UUID) (*db.JobMatch, error)
}

// LetterWriter drafts and stores a letter for one match.
type LetterWriter interface {
	Write(ctx context.Context, m *db.JobMatch) (*db.MotivationLetter, error)
}

// PendingStore lists matches without a score and records new scores.
type PendingStore interface {
	ListUnevaluated(ctx context.Context, searchTerm, cvKey string, limit int) ([]db.JobMatch, error)
	UpdateEvaluation(ctx context.Context, id uuid.UUID, eval *db.EvaluationInput) error
}

// Notifier receives run summaries.
type Notifier interface {
	NotifyRun(ctx context.Context, res *crawl.RunResult) error
	NotifyBatch(ctx context.Context, res *bridge.BatchResult) error
	NotifyError(ctx context.Context, operation string, err error) error
}

// Deps holds the collaborators of a Runner. Evaluator, Pending, Seen,
// Letters, Bridge and Notifier are optional.
type Deps struct {
	Orchestrator *crawl.Orchestrator
	CVs          CVRegistrar
	Matches      MatchReader
	Evaluator    crawl.Evaluator
	Pending      PendingStore
	Seen         crawl.SeenMarker
	Letters      LetterWriter
	Bridge       *bridge.Bridge
	Notifier     Notifier
	Board        *operations.Board
	Logger       *log.Logger
}

// Runner runs the pipeline steps.
type Runner struct {
	deps   Deps
	logger *log.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Board == nil {
		deps.Board = operations.NewBoard()
	}
	return &Runner{deps: deps, logger: logger}
}

// Board returns the operation board background runs report to.
func (r *Runner) Board() *operations.Board {
	return r.deps.Board
}

// CrawlReport is the outcome of one crawl plus its ingest step.
type CrawlReport struct {
	Run    *crawl.RunResult    `json:"run"`
	Ingest *crawl.IngestResult `json:"ingest,omitempty"`
}

// Crawl runs one crawl and stores (and optionally scores) the accepted listings.
func (r *Runner) Crawl(ctx context.Context, cfg crawl.Config, onProgress ProgressCallback) (*CrawlReport, error) {
	if r.deps.Orchestrator == nil {
		return nil, &crawl.ConfigError{Field: "orchestrator", Message: "is required"}
	}

	res, err := r.deps.Orchestrator.Run(ctx, cfg, crawlProgress(onProgress))
	if err != nil {
		if res == nil {
			return nil, err
		}
		r.logger.Printf("[PIPELINE] Crawl %s ended with error, ingesting partial result: %v", res.RunID, err)
	}
	report := &CrawlReport{Run: res}

	emit(onProgress, ProgressEvent{Step: StepIngest, RunID: res.RunID.String(), Message: "storing accepted listings", Progress: 90})
	ingest, ingestErr := r.deps.Orchestrator.Ingest(ctx, res, r.deps.Evaluator, r.deps.Seen)
	if ingestErr != nil {
		err = errors.Join(err, ingestErr)
	}
	report.Ingest = ingest

	if r.deps.Notifier != nil {
		if nerr := r.deps.Notifier.NotifyRun(ctx, res); nerr != nil {
			r.logger.Printf("[PIPELINE] Failed to send run summary: %v", nerr)
		}
	}
	return report, err
}

// ProfileConfig turns a search profile into a crawl config, registering the
// profile's CV to obtain its key.
func (r *Runner) ProfileConfig(ctx context.Context, p config.SearchProfile, base crawl.Config) (crawl.Config, error) {
	if r.deps.CVs == nil {
		return crawl.Config{}, &crawl.ConfigError{Field: "cv_registrar", Message: "is required"}
	}
	cv, err := r.deps.CVs.GetOrCreate(ctx, p.CVPath, nil, map[string]any{"profile": p.Name})
	if err != nil {
		return crawl.Config{}, fmt.Errorf("failed to register CV for profile %s: %w", p.Name, err)
	}
	cfg := base
	cfg.SearchTerm = p.SearchTerm
	cfg.CVKey = cv.CVKey
	cfg.SourceURL = p.SourceURL
	if p.MaxPages > 0 {
		cfg.MaxPages = p.MaxPages
	}
	return cfg, nil
}

// CrawlProfiles runs every profile, at most limit at a time. Profiles are
// independent; a failure in one is reported without stopping the others.
func (r *Runner) CrawlProfiles(ctx context.Context, profiles []config.SearchProfile, base crawl.Config, limit int, onProgress ProgressCallback) ([]*CrawlReport, error) {
	if limit <= 0 {
		limit = 1
	}
	reports := make([]*CrawlReport, len(profiles))
	errs := make([]error, len(profiles))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range profiles {
		g.Go(func() error {
			cfg, err := r.ProfileConfig(gCtx, p, base)
			if err != nil {
				errs[i] = err
				return nil
			}
			reports[i], err = r.Crawl(gCtx, cfg, onProgress)
			if err != nil {
				errs[i] = fmt.Errorf("profile %s: %w", p.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// LetterReport summarizes a letter batch.
type LetterReport struct {
	Written int                `json:"written"`
	Failed  int                `json:"failed"`
	Errors  []bridge.ItemError `json:"errors,omitempty"`
}

// GenerateLetters drafts a letter for each match. Failures are per item.
func (r *Runner) GenerateLetters(ctx context.Context, ids []uuid.UUID, onProgress ProgressCallback) (*LetterReport, error) {
	if r.deps.Letters == nil || r.deps.Matches == nil {
		return nil, &crawl.ConfigError{Field: "letters", Message: "letter writer and match reader are required"}
	}
	out := &LetterReport{}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		fail := func(title string, err error) {
			out.Failed++
			out.Errors = append(out.Errors, bridge.ItemError{JobMatchID: id.String(), JobTitle: title, Type: "letter", Details: err.Error()})
			r.logger.Printf("[PIPELINE] Letter for %s failed: %v", id, err)
		}

		m, err := r.deps.Matches.GetJobMatch(ctx, id)
		switch {
		case err != nil:
			fail("", err)
		case m == nil:
			fail("", fmt.Errorf("job match %s not found", id))
		default:
			if _, err := r.deps.Letters.Write(ctx, m); err != nil {
				fail(m.Title, err)
			} else {
				out.Written++
			}
		}
		emit(onProgress, ProgressEvent{
			Step: StepLetters, Progress: percent(i+1, len(ids)),
			Message: fmt.Sprintf("%d of %d letters", i+1, len(ids)),
		})
	}
	return out, nil
}

// EvaluationReport summarizes an EvaluatePending pass.
type EvaluationReport struct {
	Evaluated int                `json:"evaluated"`
	Failed    int                `json:"failed"`
	Errors    []bridge.ItemError `json:"errors,omitempty"`
}

// EvaluatePending scores up to limit stored matches of one search term and CV
// that have no score yet, oldest first. Matches scored concurrently by
// another run are skipped silently.
func (r *Runner) EvaluatePending(ctx context.Context, searchTerm, cvKey string, limit int, onProgress ProgressCallback) (*EvaluationReport, error) {
	if r.deps.Evaluator == nil || r.deps.Pending == nil {
		return nil, &crawl.ConfigError{Field: "evaluator", Message: "evaluator and pending store are required"}
	}
	pending, err := r.deps.Pending.ListUnevaluated(ctx, searchTerm, cvKey, limit)
	if err != nil {
		return nil, err
	}

	out := &EvaluationReport{}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m := &pending[i]
		if err := r.evaluateOne(ctx, m); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, bridge.ItemError{JobMatchID: m.ID.String(), JobTitle: m.Title, Type: "evaluation", Details: err.Error()})
			r.logger.Printf("[PIPELINE] Evaluation of %s failed: %v", m.ID, err)
		} else {
			out.Evaluated++
		}
		emit(onProgress, ProgressEvent{
			Step: StepEvaluate, Progress: percent(i+1, len(pending)),
			Message: fmt.Sprintf("%d of %d matches scored", i+1, len(pending)),
		})
	}
	return out, nil
}

func (r *Runner) evaluateOne(ctx context.Context, m *db.JobMatch) error {
	listing, ok := extraction.ListingFromMap(m.RawSnapshot)
	if !ok {
		listing = extraction.RawListing{Title: m.Title, Company: m.Company, Location: m.Location, URL: m.JobURL}
	}
	verdict, err := r.deps.Evaluator.Evaluate(ctx, m.CVKey, listing)
	if err != nil {
		return err
	}
	if err := r.deps.Pending.UpdateEvaluation(ctx, m.ID, verdict); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

// QueueApplications runs the queue bridge over the given matches.
func (r *Runner) QueueApplications(ctx context.Context, ids []uuid.UUID, opts bridge.Options) (*bridge.BatchResult, error) {
	if r.deps.Bridge == nil {
		return nil, &crawl.ConfigError{Field: "bridge", Message: "is required"}
	}
	res, err := r.deps.Bridge.QueueMatches(ctx, ids, opts)
	if err != nil {
		return res, err
	}
	if r.deps.Notifier != nil {
		if nerr := r.deps.Notifier.NotifyBatch(ctx, res); nerr != nil {
			r.logger.Printf("[PIPELINE] Failed to send batch summary: %v", nerr)
		}
	}
	return res, nil
}

func crawlProgress(cb ProgressCallback) crawl.ProgressFunc {
	if cb == nil {
		return nil
	}
	return func(p crawl.Progress) {
		pct := 0
		if p.MaxPages > 0 {
			// Ingest reports the last stretch.
			pct = percent(p.Page, p.MaxPages) * 85 / 100
		}
		cb(ProgressEvent{
			Step:     StepCrawl,
			RunID:    p.RunID.String(),
			Message:  p.Message,
			Progress: pct,
			Content:  p,
		})
	}
}

func emit(cb ProgressCallback, ev ProgressEvent) {
	if cb != nil {
		cb(ev)
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
