package crawl

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/urlnorm"
)

// State is a step of a crawl run.
type State string

const (
	StateInit            State = "init"
	StatePageFetch       State = "page_fetch"
	StateDedup           State = "dedup"
	StateContinue        State = "continue"
	StateEarlyExit       State = "early_exit"
	StateNaturalEnd      State = "natural_end"
	StateBudgetExhausted State = "budget_exhausted"
	StateDone            State = "done"
	// StateAborted ends a run stopped by cancellation or a store failure.
	StateAborted         State = "aborted"
)

// Defaults used for the early-exit savings estimate.
const (
	DefaultListingsPerPage = 20
	DefaultCostPerItem     = 0.002
	DefaultPageTimeout     = 60 * time.Second
)

// JobChecker answers whether a canonical job URL is already stored for a
// search term and CV key.
type JobChecker interface {
	JobExists(ctx context.Context, url, searchTerm, cvKey string) (bool, error)
}

// HistoryRecorder appends per-page crawl metrics.
type HistoryRecorder interface {
	InsertScrapeHistory(ctx context.Context, e *db.ScrapeHistoryEntry) error
}

// Config describes one crawl run.
type Config struct {
	SearchTerm string
	CVKey      string
	SourceURL  string
	MaxPages   int
	// PageTimeout bounds each page fetch.
	PageTimeout time.Duration
	// ListingsPerPage and CostPerItem only feed the savings estimate.
	ListingsPerPage int
	CostPerItem     float64
}

// Validate checks the configuration before any page is fetched.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SearchTerm) == "" {
		return &ConfigError{Field: "search_term", Message: "is required"}
	}
	if strings.TrimSpace(c.CVKey) == "" {
		return &ConfigError{Field: "cv_key", Message: "is required"}
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{Field: "source_url", Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", c.SourceURL)}
	}
	if c.MaxPages <= 0 {
		return &ConfigError{Field: "max_pages", Message: "must be positive"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.ListingsPerPage <= 0 {
		c.ListingsPerPage = DefaultListingsPerPage
	}
	if c.CostPerItem <= 0 {
		c.CostPerItem = DefaultCostPerItem
	}
	return c
}

// Listing is an accepted listing with its canonical URL.
type Listing struct {
	extraction.RawListing
	CanonicalURL string `json:"canonical_url"`
}

// PageResult summarizes one processed page.
type PageResult struct {
	Page       int           `json:"page"`
	Found      int           `json:"found"`
	New        int           `json:"new"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Duration   time.Duration `json:"duration"`
	Failed     bool          `json:"failed"`
	Outcome    State         `json:"outcome"`
}

// RunResult is the outcome of a run. Listings holds only newly accepted
// listings; duplicates are counted, never returned.
type RunResult struct {
	RunID               uuid.UUID    `json:"run_id"`
	SearchTerm          string       `json:"search_term"`
	CVKey               string       `json:"cv_key"`
	PagesProcessed      int          `json:"pages_processed"`
	PagesFailed         int          `json:"pages_failed"`
	NewJobs             int          `json:"new_jobs"`
	DuplicateJobs       int          `json:"duplicate_jobs"`
	EarlyExit           bool         `json:"early_exit"`
	ExitPage            int          `json:"exit_page"`
	EndReason           State        `json:"end_reason"`
	State               State        `json:"state"`
	EstimatedPagesSaved int          `json:"estimated_pages_saved"`
	EstimatedCostSaved  float64      `json:"estimated_cost_saved"`
	Pages               []PageResult `json:"pages"`
	Listings            []Listing    `json:"listings"`
	StartedAt           time.Time    `json:"started_at"`
	FinishedAt          time.Time    `json:"finished_at"`
}

// Progress is reported after every state change of a run.
type Progress struct {
	RunID      uuid.UUID
	SearchTerm string
	Page       int
	MaxPages   int
	NewJobs    int
	Duplicates int
	State      State
	Message    string
}

// ProgressFunc receives progress updates. It must not block.
type ProgressFunc func(Progress)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Source     extraction.ListingSource
	Jobs       JobChecker
	History    HistoryRecorder
	Matches    MatchStore
	Normalizer *urlnorm.Normalizer
	Logger     *log.Logger
}

// Orchestrator runs crawls.
type Orchestrator struct {
	source     extraction.ListingSource
	jobs       JobChecker
	history    HistoryRecorder
	matches    MatchStore
	normalizer *urlnorm.Normalizer
	logger     *log.Logger
	now        func() time.Time
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = urlnorm.Must(urlnorm.DefaultBaseURL)
	}
	return &Orchestrator{
		source:     deps.Source,
		jobs:       deps.Jobs,
		history:    deps.History,
		matches:    deps.Matches,
		normalizer: deps.Normalizer,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Run crawls pages 1..MaxPages sequentially. It stops early when a page yields
// only known listings, and at the first empty page. A failed page fetch is
// logged and skipped. A store failure aborts the run and returns the partial
// result together with a *CrawlError.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, progress ProgressFunc) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.source == nil || o.jobs == nil {
		return nil, &ConfigError{Field: "deps", Message: "listing source and job checker are required"}
	}
	cfg = cfg.withDefaults()

	res := &RunResult{
		RunID:      uuid.New(),
		SearchTerm: cfg.SearchTerm,
		CVKey:      cfg.CVKey,
		State:      StateInit,
		StartedAt:  o.now(),
		Listings:   []Listing{},
	}
	report := func(page int, state State, msg string) {
		res.State = state
		if progress != nil {
			progress(Progress{
				RunID: res.RunID, SearchTerm: cfg.SearchTerm, Page: page, MaxPages: cfg.MaxPages,
				NewJobs: res.NewJobs, Duplicates: res.DuplicateJobs, State: state, Message: msg,
			})
		}
	}

	o.logger.Printf("[CRAWL] Run %s started: term=%q cv=%s pages<=%d", res.RunID, cfg.SearchTerm, cfg.CVKey, cfg.MaxPages)
	report(0, StateInit, "run started")

	// Canonical URLs accepted or skipped so far in this run. Listings are only
	// stored after the run, so repeats across pages are caught here.
	seen := make(map[string]struct{})

	res.EndReason = StateBudgetExhausted
	for page := 1; page <= cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			res.EndReason = StateAborted
			return o.finish(res, report), &CrawlError{Page: page, Message: "run cancelled", Cause: err}
		}

		pr, accepted, err := o.processPage(ctx, cfg, page, seen, report)
		if err != nil {
			res.EndReason = StateAborted
			return o.finish(res, report), err
		}
		res.Pages = append(res.Pages, *pr)
		if pr.Failed {
			res.PagesFailed++
			continue
		}

		res.PagesProcessed++
		res.NewJobs += pr.New
		res.DuplicateJobs += pr.Duplicates
		res.Listings = append(res.Listings, accepted...)

		o.recordHistory(ctx, res.RunID, cfg, pr)

		switch pr.Outcome {
		case StateNaturalEnd:
			o.logger.Printf("[CRAWL] Page %d empty, end of results for %q", page, cfg.SearchTerm)
			res.EndReason = StateNaturalEnd
			res.ExitPage = page
			report(page, StateNaturalEnd, "no more results")
			return o.finish(res, report), nil

		case StateEarlyExit:
			res.EarlyExit = true
			res.ExitPage = page
			res.EndReason = StateEarlyExit
			res.EstimatedPagesSaved = cfg.MaxPages - page
			res.EstimatedCostSaved = float64(res.EstimatedPagesSaved*cfg.ListingsPerPage) * cfg.CostPerItem
			o.logger.Printf("[CRAWL] Early exit on page %d for %q: %d duplicates, 0 new. Saved ~%d pages (~%d listings, ~$%.2f)",
				page, cfg.SearchTerm, pr.Duplicates, res.EstimatedPagesSaved,
				res.EstimatedPagesSaved*cfg.ListingsPerPage, res.EstimatedCostSaved)
			report(page, StateEarlyExit, "caught up with known listings")
			return o.finish(res, report), nil
		}

		report(page, StateContinue, fmt.Sprintf("page %d: %d new, %d duplicates", page, pr.New, pr.Duplicates))
	}

	res.ExitPage = cfg.MaxPages
	report(cfg.MaxPages, StateBudgetExhausted, "page budget exhausted")
	return o.finish(res, report), nil
}

// processPage fetches and de-duplicates one page against the store and the
// run's seen set. A fetch failure is returned as a failed PageResult, not an
// error.
func (o *Orchestrator) processPage(ctx context.Context, cfg Config, page int, seen map[string]struct{}, report func(int, State, string)) (*PageResult, []Listing, error) {
	start := o.now()
	pr := &PageResult{Page: page}

	report(page, StatePageFetch, fmt.Sprintf("fetching page %d", page))
	pageCtx, cancel := context.WithTimeout(ctx, cfg.PageTimeout)
	raw, err := o.source.FetchListingsForPage(pageCtx, cfg.SourceURL, page)
	cancel()
	if err != nil {
		o.logger.Printf("[CRAWL] Page %d fetch failed for %q, skipping: %v", page, cfg.SearchTerm, err)
		pr.Failed = true
		pr.Duration = o.now().Sub(start)
		return pr, nil, nil
	}

	report(page, StateDedup, fmt.Sprintf("checking %d listings", len(raw)))
	pr.Found = len(raw)
	var accepted []Listing

	for _, l := range raw {
		canonical, err := o.normalizer.Normalize(l.URL, "")
		if err != nil {
			o.logger.Printf("[CRAWL] Skipping listing %q with unusable URL %q: %v", l.Title, l.URL, err)
			pr.Rejected++
			continue
		}
		if _, dup := seen[canonical]; dup {
			pr.Duplicates++
			continue
		}
		seen[canonical] = struct{}{}

		exists, err := o.jobs.JobExists(ctx, canonical, cfg.SearchTerm, cfg.CVKey)
		if err != nil {
			return nil, nil, &CrawlError{Page: page, Message: "job lookup failed", Cause: err}
		}
		if exists {
			pr.Duplicates++
			continue
		}
		pr.New++
		accepted = append(accepted, Listing{RawListing: l, CanonicalURL: canonical})
	}

	pr.Duration = o.now().Sub(start)
	pr.Outcome = decide(pr)
	return pr, accepted, nil
}

// decide applies the termination rules to a processed page.
func decide(pr *PageResult) State {
	switch {
	case pr.Found == 0:
		return StateNaturalEnd
	case pr.New == 0 && pr.Duplicates > 0:
		return StateEarlyExit
	default:
		return StateContinue
	}
}

func (o *Orchestrator) recordHistory(ctx context.Context, runID uuid.UUID, cfg Config, pr *PageResult) {
	if o.history == nil {
		return
	}
	entry := &db.ScrapeHistoryEntry{
		RunID:         runID,
		SearchTerm:    cfg.SearchTerm,
		CVKey:         cfg.CVKey,
		PageNumber:    pr.Page,
		JobsFound:     pr.Found,
		NewJobs:       pr.New,
		DuplicateJobs: pr.Duplicates,
		Duration:      pr.Duration,
		EarlyExit:     pr.Outcome == StateEarlyExit,
	}
	if err := o.history.InsertScrapeHistory(ctx, entry); err != nil {
		o.logger.Printf("[CRAWL] Failed to record history for page %d: %v", pr.Page, err)
	}
}

func (o *Orchestrator) finish(res *RunResult, report func(int, State, string)) *RunResult {
	res.FinishedAt = o.now()
	o.logger.Printf("[CRAWL] Run %s done: %d pages, %d new, %d duplicates, %d failed pages, end=%s",
		res.RunID, res.PagesProcessed, res.NewJobs, res.DuplicateJobs, res.PagesFailed, res.EndReason)
	report(res.ExitPage, StateDone, string(res.EndReason))
	return res
}
