package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
)

// MatchStore persists accepted listings.
type MatchStore interface {
	InsertJobMatch(ctx context.Context, input *db.JobMatchCreateInput) (*uuid.UUID, error)
	UpdateEvaluation(ctx context.Context, id uuid.UUID, eval *db.EvaluationInput) error
}

// Evaluator scores a listing against the CV identified by cvKey.
type Evaluator interface {
	Evaluate(ctx context.Context, cvKey string, listing extraction.RawListing) (*db.EvaluationInput, error)
}

// SeenMarker is told about newly stored triples so later lookups are cheap.
type SeenMarker interface {
	MarkSeen(ctx context.Context, url, searchTerm, cvKey string)
}

// IngestResult counts the outcome of persisting a run's listings.
type IngestResult struct {
	Stored          int      `json:"stored"`
	Duplicates      int      `json:"duplicates"`
	Evaluated       int      `json:"evaluated"`
	EvaluationFails int      `json:"evaluation_failures"`
	Errors          []string `json:"errors,omitempty"`
}

// Ingest stores accepted listings as job matches and, when eval is non-nil,
// scores each stored match. Insert conflicts from concurrent runs count as
// duplicates. A failed evaluation is logged and the match stays unevaluated.
func (o *Orchestrator) Ingest(ctx context.Context, res *RunResult, eval Evaluator, seen SeenMarker) (*IngestResult, error) {
	if o.matches == nil {
		return nil, &ConfigError{Field: "deps", Message: "match store is required for ingest"}
	}

	out := &IngestResult{}
	for _, l := range res.Listings {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		id, err := o.matches.InsertJobMatch(ctx, &db.JobMatchCreateInput{
			JobURL:      l.CanonicalURL,
			SearchTerm:  res.SearchTerm,
			CVKey:       res.CVKey,
			Title:       l.Title,
			Company:     l.Company,
			Location:    l.Location,
			RawSnapshot: l.Snapshot(),
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", l.CanonicalURL, err))
			o.logger.Printf("[CRAWL] Failed to store %s: %v", l.CanonicalURL, err)
			continue
		}
		if seen != nil {
			seen.MarkSeen(ctx, l.CanonicalURL, res.SearchTerm, res.CVKey)
		}
		if id == nil {
			out.Duplicates++
			continue
		}
		out.Stored++

		if eval == nil {
			continue
		}
		verdict, err := eval.Evaluate(ctx, res.CVKey, l.RawListing)
		if err != nil {
			out.EvaluationFails++
			o.logger.Printf("[CRAWL] Evaluation failed for %s, leaving unscored: %v", l.CanonicalURL, err)
			continue
		}
		if err := o.matches.UpdateEvaluation(ctx, *id, verdict); err != nil && !errors.Is(err, db.ErrNotFound) {
			out.EvaluationFails++
			o.logger.Printf("[CRAWL] Failed to store evaluation for %s: %v", l.CanonicalURL, err)
			continue
		}
		out.Evaluated++
	}

	o.logger.Printf("[CRAWL] Ingested run %s: %d stored, %d duplicates, %d evaluated, %d evaluation failures",
		res.RunID, out.Stored, out.Duplicates, out.Evaluated, out.EvaluationFails)
	return out, nil
}

// RunOutcome pairs a run configuration with its result.
type RunOutcome struct {
	Config Config     `json:"config"`
	Result *RunResult `json:"result,omitempty"`
	Err    error      `json:"-"`
}

// RunMany runs independent crawls concurrently, at most limit at a time. Each
// run owns its page sequence; one failing run does not stop the others.
func (o *Orchestrator) RunMany(ctx context.Context, cfgs []Config, limit int, progress ProgressFunc) ([]RunOutcome, error) {
	if limit <= 0 {
		limit = 1
	}
	outcomes := make([]RunOutcome, len(cfgs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, cfg := range cfgs {
		g.Go(func() error {
			res, err := o.Run(gCtx, cfg, progress)
			outcomes[i] = RunOutcome{Config: cfg, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, oc := range outcomes {
		if oc.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", oc.Config.SearchTerm, oc.Config.CVKey, oc.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}
