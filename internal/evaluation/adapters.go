package evaluation

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
)

// SummarySource resolves a CV key to its stored summary.
type SummarySource interface {
	Summary(ctx context.Context, cvKey string) (string, error)
}

// Scorer adapts Service to the crawl ingest step, which knows CV keys rather
// than summaries.
type Scorer struct {
	svc       *Service
	summaries SummarySource
}

// NewScorer creates a Scorer.
func NewScorer(svc *Service, summaries SummarySource) *Scorer {
	return &Scorer{svc: svc, summaries: summaries}
}

// Evaluate implements crawl.Evaluator.
func (s *Scorer) Evaluate(ctx context.Context, cvKey string, listing extraction.RawListing) (*db.EvaluationInput, error) {
	summary, err := s.summaries.Summary(ctx, cvKey)
	if err != nil {
		return nil, err
	}
	e, err := s.svc.Evaluate(ctx, summary, listing)
	if err != nil {
		return nil, err
	}
	return &db.EvaluationInput{Scores: e.Scores, OverallScore: e.OverallMatch, Reasoning: e.Reasoning}, nil
}

// LetterStore persists scraped details and generated letters.
type LetterStore interface {
	UpsertJobDetail(ctx context.Context, d *db.JobDetail) error
	SaveMotivationLetter(ctx context.Context, l *db.MotivationLetter) error
}

// LetterWriter scrapes a job's detail page, stores it and drafts a letter for it.
type LetterWriter struct {
	svc       *Service
	summaries SummarySource
	details   extraction.DetailSource
	store     LetterStore
	logger    *log.Logger
}

// NewLetterWriter creates a LetterWriter.
func NewLetterWriter(svc *Service, summaries SummarySource, details extraction.DetailSource, store LetterStore, logger *log.Logger) *LetterWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &LetterWriter{svc: svc, summaries: summaries, details: details, store: store, logger: logger}
}

// Write produces a letter for the match. The scraped detail is stored even
// when letter generation fails, so contact data is not lost.
func (w *LetterWriter) Write(ctx context.Context, m *db.JobMatch) (*db.MotivationLetter, error) {
	detail, err := w.details.FetchJobDetail(ctx, m.JobURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job detail: %w", err)
	}
	if detail == nil {
		w.logger.Printf("[EVAL] No usable detail page for %s, using listing data", m.JobURL)
		detail = &extraction.RawJobDetail{URL: m.JobURL}
	}
	if detail.Title == "" {
		detail.Title = m.Title
	}
	if detail.Company == "" {
		detail.Company = m.Company
	}

	if err := w.store.UpsertJobDetail(ctx, &db.JobDetail{
		JobURL:         m.JobURL,
		JobTitle:       detail.Title,
		Company:        detail.Company,
		ContactName:    detail.ContactName,
		ContactEmail:   detail.ContactEmail,
		ApplicationURL: detail.ApplicationURL,
		Description:    detail.Description,
	}); err != nil {
		return nil, err
	}

	summary, err := w.summaries.Summary(ctx, m.CVKey)
	if err != nil {
		return nil, err
	}
	letter, err := w.svc.GenerateLetter(ctx, summary, *detail)
	if err != nil {
		return nil, err
	}

	saved := &db.MotivationLetter{
		JobURL:      m.JobURL,
		JobTitle:    m.Title,
		Company:     m.Company,
		SubjectLine: letter.SubjectLine,
		LetterHTML:  letter.LetterHTML,
		LetterText:  letter.LetterText,
		EmailText:   letter.EmailText,
	}
	if err := w.store.SaveMotivationLetter(ctx, saved); err != nil {
		return nil, err
	}
	w.logger.Printf("[EVAL] Letter saved for %s at %s", m.Title, m.Company)
	return saved, nil
}
