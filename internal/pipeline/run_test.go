package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/config"
	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/extraction"
	"github.com/jonathan/jobmatch/internal/operations"
	"github.com/jonathan/jobmatch/internal/urlnorm"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

type pagedSource map[int][]extraction.RawListing

func (p pagedSource) FetchListingsForPage(_ context.Context, _ string, page int) ([]extraction.RawListing, error) {
	return p[page], nil
}

type memStore struct {
	mu      sync.Mutex
	rows    map[string]uuid.UUID
	matches map[uuid.UUID]*db.JobMatch
	evals   int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]uuid.UUID{}, matches: map[uuid.UUID]*db.JobMatch{}}
}

func key(url, term, cv string) string { return url + "|" + term + "|" + cv }

func (m *memStore) JobExists(_ context.Context, url, term, cv string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[key(url, term, cv)]
	return ok, nil
}

func (m *memStore) InsertScrapeHistory(context.Context, *db.ScrapeHistoryEntry) error { return nil }

func (m *memStore) InsertJobMatch(_ context.Context, in *db.JobMatchCreateInput) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(in.JobURL, in.SearchTerm, in.CVKey)
	if _, ok := m.rows[k]; ok {
		return nil, nil
	}
	id := uuid.New()
	m.rows[k] = id
	m.matches[id] = &db.JobMatch{ID: id, JobURL: in.JobURL, SearchTerm: in.SearchTerm, CVKey: in.CVKey, Title: in.Title, Company: in.Company}
	return &id, nil
}

func (m *memStore) UpdateEvaluation(_ context.Context, id uuid.UUID, e *db.EvaluationInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals++
	score := e.OverallScore
	m.matches[id].OverallScore = &score
	return nil
}

func (m *memStore) GetJobMatch(_ context.Context, id uuid.UUID) (*db.JobMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches[id], nil
}

type fixedEvaluator float64

func (f fixedEvaluator) Evaluate(context.Context, string, extraction.RawListing) (*db.EvaluationInput, error) {
	return &db.EvaluationInput{OverallScore: float64(f)}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	runs   int
	errors []string
}

func (n *recordingNotifier) NotifyRun(context.Context, *crawl.RunResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs++
	return nil
}

func (n *recordingNotifier) NotifyBatch(context.Context, *bridge.BatchResult) error { return nil }

func (n *recordingNotifier) NotifyError(_ context.Context, op string, err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, op+": "+err.Error())
	return nil
}

func listings(page, n int) []extraction.RawListing {
	out := make([]extraction.RawListing, n)
	for i := range out {
		out[i] = extraction.RawListing{
			Title:   fmt.Sprintf("Job %d-%d", page, i),
			Company: "ACME",
			URL:     fmt.Sprintf("/job/go-dev/%d%02d", page, i),
		}
	}
	return out
}

func newRunner(t *testing.T, src extraction.ListingSource, store *memStore, extra func(*Deps)) *Runner {
	t.Helper()
	n, err := urlnorm.New("")
	require.NoError(t, err)
	orch := crawl.New(crawl.Deps{Source: src, Jobs: store, History: store, Matches: store, Normalizer: n, Logger: quiet()})
	deps := Deps{Orchestrator: orch, Matches: store, Logger: quiet()}
	if extra != nil {
		extra(&deps)
	}
	return NewRunner(deps)
}

func baseConfig() crawl.Config {
	return crawl.Config{SearchTerm: "golang", CVKey: "0123456789abcdef", SourceURL: "https://www.stepstone.de/jobs/golang", MaxPages: 3}
}

func TestRunner_Crawl(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	r := newRunner(t, pagedSource{1: listings(1, 3), 2: listings(2, 2)}, store, func(d *Deps) {
		d.Evaluator = fixedEvaluator(7)
		d.Notifier = notifier
	})

	var events []ProgressEvent
	report, err := r.Crawl(context.Background(), baseConfig(), func(ev ProgressEvent) { events = append(events, ev) })
	require.NoError(t, err)
	assert.Equal(t, 5, report.Run.NewJobs)
	assert.Equal(t, crawl.StateNaturalEnd, report.Run.EndReason)
	assert.Equal(t, 5, report.Ingest.Stored)
	assert.Equal(t, 5, report.Ingest.Evaluated)
	assert.Equal(t, 5, store.evals)
	assert.Equal(t, 1, notifier.runs)

	require.NotEmpty(t, events)
	assert.Equal(t, StepIngest, events[len(events)-1].Step)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.Progress, 90)
	}

	// Second pass sees only known listings and exits on page 1.
	report, err = r.Crawl(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	assert.True(t, report.Run.EarlyExit)
	assert.Equal(t, 1, report.Run.ExitPage)
	assert.Equal(t, 0, report.Ingest.Stored)
}

func TestRunner_CrawlInvalidConfig(t *testing.T) {
	r := newRunner(t, pagedSource{}, newMemStore(), nil)
	cfg := baseConfig()
	cfg.CVKey = ""
	_, err := r.Crawl(context.Background(), cfg, nil)
	var cfgErr *crawl.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewRunner(Deps{Logger: quiet()}).Crawl(context.Background(), baseConfig(), nil)
	assert.ErrorAs(t, err, &cfgErr)
}

type fakeCVs struct{ err error }

func (f fakeCVs) GetOrCreate(_ context.Context, path string, _ *string, _ map[string]any) (*db.CVVersion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &db.CVVersion{CVKey: "key-" + path, FilePath: path}, nil
}

func TestRunner_CrawlProfiles(t *testing.T) {
	store := newMemStore()
	r := newRunner(t, pagedSource{1: listings(1, 2)}, store, func(d *Deps) { d.CVs = fakeCVs{} })

	profiles := []config.SearchProfile{
		{Name: "a", SearchTerm: "golang", CVPath: "a.pdf", SourceURL: "https://www.stepstone.de/jobs/golang"},
		{Name: "b", SearchTerm: "rust", CVPath: "b.pdf", SourceURL: "https://www.stepstone.de/jobs/rust", MaxPages: 1},
	}
	reports, err := r.CrawlProfiles(context.Background(), profiles, crawl.Config{MaxPages: 2}, 2, nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "key-a.pdf", reports[0].Run.CVKey)
	assert.Equal(t, 2, reports[0].Ingest.Stored)
	assert.Equal(t, 2, reports[1].Ingest.Stored, "same URLs under another term are new")
	assert.Equal(t, crawl.StateBudgetExhausted, reports[1].Run.EndReason)
}

func TestRunner_CrawlProfilesRegistrationFailure(t *testing.T) {
	r := newRunner(t, pagedSource{}, newMemStore(), func(d *Deps) { d.CVs = fakeCVs{err: errors.New("no such file")} })
	reports, err := r.CrawlProfiles(context.Background(),
		[]config.SearchProfile{{Name: "a", SearchTerm: "go", CVPath: "x", SourceURL: "https://www.stepstone.de/jobs"}},
		crawl.Config{MaxPages: 1}, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
	assert.Nil(t, reports[0])
}

type stubLetters struct{ fail map[string]bool }

func (s stubLetters) Write(_ context.Context, m *db.JobMatch) (*db.MotivationLetter, error) {
	if s.fail[m.Title] {
		return nil, errors.New("model unavailable")
	}
	return &db.MotivationLetter{JobURL: m.JobURL}, nil
}

func TestRunner_GenerateLetters(t *testing.T) {
	store := newMemStore()
	a, _ := store.InsertJobMatch(context.Background(), &db.JobMatchCreateInput{JobURL: "u1", SearchTerm: "t", CVKey: "c", Title: "Good"})
	b, _ := store.InsertJobMatch(context.Background(), &db.JobMatchCreateInput{JobURL: "u2", SearchTerm: "t", CVKey: "c", Title: "Bad"})

	r := newRunner(t, pagedSource{}, store, func(d *Deps) { d.Letters = stubLetters{fail: map[string]bool{"Bad": true}} })
	var last ProgressEvent
	report, err := r.GenerateLetters(context.Background(), []uuid.UUID{*a, *b, uuid.New()}, func(ev ProgressEvent) { last = ev })
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, "Bad", report.Errors[0].JobTitle)
	assert.Contains(t, report.Errors[1].Details, "not found")
	assert.Equal(t, 100, last.Progress)

	_, err = NewRunner(Deps{}).GenerateLetters(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunner_StartCrawl(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	r := newRunner(t, pagedSource{1: listings(1, 2)}, store, func(d *Deps) { d.Notifier = notifier })

	id := r.StartCrawl(baseConfig())
	op := waitFinished(t, r.Board(), id)
	assert.Equal(t, operations.StatusSucceeded, op.Status)
	assert.Equal(t, 100, op.Progress)
	assert.Contains(t, op.Message, "2 new")

	bad := baseConfig()
	bad.SourceURL = "not a url"
	id = r.StartCrawl(bad)
	op = waitFinished(t, r.Board(), id)
	assert.Equal(t, operations.StatusFailed, op.Status)
	assert.Contains(t, op.Message, "source_url")
	notifier.mu.Lock()
	assert.Len(t, notifier.errors, 1)
	notifier.mu.Unlock()
}

func TestRunner_StartQueueWithoutBridge(t *testing.T) {
	r := newRunner(t, pagedSource{}, newMemStore(), nil)
	op := waitFinished(t, r.Board(), r.StartQueue(nil, bridge.Options{}))
	assert.Equal(t, operations.StatusFailed, op.Status)
	assert.Contains(t, op.Message, "bridge")
}

func waitFinished(t *testing.T, b *operations.Board, id string) operations.Operation {
	t.Helper()
	var op operations.Operation
	require.Eventually(t, func() bool {
		var err error
		op, err = b.Get(id)
		return err == nil && op.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return op
}

func (m *memStore) ListUnevaluated(_ context.Context, term, cv string, limit int) ([]db.JobMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.JobMatch
	for _, jm := range m.matches {
		if jm.OverallScore == nil && jm.SearchTerm == term && jm.CVKey == cv && len(out) < limit {
			out = append(out, *jm)
		}
	}
	return out, nil
}

type failingEvaluator struct{ failTitle string }

func (f failingEvaluator) Evaluate(_ context.Context, _ string, l extraction.RawListing) (*db.EvaluationInput, error) {
	if l.Title == f.failTitle {
		return nil, errors.New("model refused")
	}
	return &db.EvaluationInput{OverallScore: 6}, nil
}

func TestRunner_EvaluatePending(t *testing.T) {
	store := newMemStore()
	for i, title := range []string{"Go Dev", "Rust Dev", "Other"} {
		id := uuid.New()
		term := "golang"
		if i == 2 {
			term = "rust"
		}
		store.matches[id] = &db.JobMatch{
			ID: id, Title: title, SearchTerm: term, CVKey: "0123456789abcdef",
			JobURL:      "https://www.stepstone.de/stellenangebote--" + title,
			RawSnapshot: map[string]any{"title": title, "url": "/job/" + title},
		}
	}

	r := newRunner(t, pagedSource{}, store, func(d *Deps) {
		d.Evaluator = failingEvaluator{failTitle: "Rust Dev"}
		d.Pending = store
	})

	var last ProgressEvent
	report, err := r.EvaluatePending(context.Background(), "golang", "0123456789abcdef", 10, func(ev ProgressEvent) { last = ev })
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Rust Dev", report.Errors[0].JobTitle)
	assert.Equal(t, "evaluation", report.Errors[0].Type)
	assert.Equal(t, StepEvaluate, last.Step)
	assert.Equal(t, 100, last.Progress)
}

func TestRunner_EvaluatePending_RequiresEvaluator(t *testing.T) {
	r := newRunner(t, pagedSource{}, newMemStore(), nil)

	_, err := r.EvaluatePending(context.Background(), "golang", "0123456789abcdef", 10, nil)
	var cfgErr *crawl.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
