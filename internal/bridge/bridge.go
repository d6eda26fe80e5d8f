package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/emailgate"
	"github.com/jonathan/jobmatch/internal/queue"
	"github.com/jonathan/jobmatch/internal/urlnorm"
)

// Store is the persistence the bridge reads from.
type Store interface {
	GetJobMatch(ctx context.Context, id uuid.UUID) (*db.JobMatch, error)
	ListMotivationLetters(ctx context.Context) ([]db.MotivationLetter, error)
	ListJobDetails(ctx context.Context) ([]db.JobDetail, error)
}

// Options tune one batch.
type Options struct {
	// SkipDuplicates rejects a match when a pending record with the same
	// title and company already exists.
	SkipDuplicates bool
}

// ItemError describes one item that was not queued.
type ItemError struct {
	JobMatchID string `json:"job_match_id"`
	JobTitle   string `json:"job_title"`
	Type       string `json:"type"`
	Details    string `json:"details"`
}

// BatchResult reports every item of a batch.
type BatchResult struct {
	Queued   int         `json:"queued"`
	Failed   int         `json:"failed"`
	Warnings []string    `json:"warnings"`
	Errors   []ItemError `json:"errors"`
	IDs      []string    `json:"ids"`
}

// Bridge builds and queues applications.
type Bridge struct {
	store      Store
	queue      queue.Store
	normalizer *urlnorm.Normalizer
	logger     *log.Logger
	now        func() time.Time
}

// New creates a bridge.
func New(store Store, q queue.Store, n *urlnorm.Normalizer, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	if n == nil {
		n = urlnorm.Must(urlnorm.DefaultBaseURL)
	}
	return &Bridge{store: store, queue: q, normalizer: n, logger: logger, now: time.Now}
}

// Transform converts a validated context into a pending queue record.
func (b *Bridge) Transform(ac *ApplicationContext) *queue.Application {
	name := ac.RecipientName
	if name == "" {
		name = DefaultRecipientName
	}
	app := &queue.Application{
		ID:                  queue.NewID(),
		JobTitle:            ac.JobTitle,
		CompanyName:         ac.CompanyName,
		RecipientEmail:      ac.RecipientEmail,
		RecipientName:       name,
		SubjectLine:         ac.SubjectLine,
		MotivationLetter:    ac.LetterBody,
		ApplicationURL:      ac.ApplicationURL,
		CreatedAt:           b.now().UTC(),
		Status:              queue.StatusPending,
		RequiresManualEmail: ac.RecipientEmail == "",
	}
	if ac.MatchScore != nil {
		app.MatchScore = *ac.MatchScore
	}
	if ac.Match != nil {
		app.JobMatchID = ac.Match.ID.String()
	}
	return app
}

// QueueMatches bridges each match independently. Lookup failures for letters
// or details abort the whole batch since no item could succeed.
func (b *Bridge) QueueMatches(ctx context.Context, ids []uuid.UUID, opts Options) (*BatchResult, error) {
	letters, err := b.store.ListMotivationLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load motivation letters: %w", err)
	}
	details, err := b.store.ListJobDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load job details: %w", err)
	}

	pendingKeys := map[string]bool{}
	if opts.SkipDuplicates {
		pending, err := b.queue.List(ctx, queue.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending applications: %w", err)
		}
		for _, p := range pending {
			pendingKeys[duplicateKey(p.JobTitle, p.CompanyName)] = true
		}
	}

	res := &BatchResult{Warnings: []string{}, Errors: []ItemError{}, IDs: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		app, warning, itemErr := b.queueOne(ctx, id, letters, details, pendingKeys, opts)
		if itemErr != nil {
			res.Failed++
			res.Errors = append(res.Errors, *itemErr)
			b.logger.Printf("[BRIDGE] %s (%s): %s", itemErr.Type, itemErr.JobTitle, itemErr.Details)
			continue
		}
		res.Queued++
		res.IDs = append(res.IDs, app.ID)
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
	}

	b.logger.Printf("[BRIDGE] Batch done: %d queued, %d failed, %d warnings", res.Queued, res.Failed, len(res.Warnings))
	return res, nil
}

func (b *Bridge) queueOne(ctx context.Context, id uuid.UUID, letters []db.MotivationLetter, details []db.JobDetail,
	pendingKeys map[string]bool, opts Options) (*queue.Application, string, *ItemError) {

	fail := func(title, kind, details string) *ItemError {
		return &ItemError{JobMatchID: id.String(), JobTitle: title, Type: kind, Details: details}
	}

	m, err := b.store.GetJobMatch(ctx, id)
	if err != nil {
		return nil, "", fail("", KindLookup, err.Error())
	}
	if m == nil {
		return nil, "", fail("", KindNotFound, fmt.Sprintf("job match %s not found", id))
	}

	ac, err := BuildContext(b.normalizer, m, letters, details)
	if err != nil {
		return nil, "", fail(m.Title, kindOf(err, KindContextBuild), err.Error())
	}
	if err := ac.Validate(); err != nil {
		return nil, "", fail(m.Title, kindOf(err, KindValidation), err.Error())
	}

	key := duplicateKey(ac.JobTitle, ac.CompanyName)
	if opts.SkipDuplicates && pendingKeys[key] {
		return nil, "", fail(ac.JobTitle, KindDuplicate,
			fmt.Sprintf("a pending application for %s at %s already exists", ac.JobTitle, ac.CompanyName))
	}

	app := b.Transform(ac)
	if err := queue.Validate(app); err != nil {
		return nil, "", fail(ac.JobTitle, KindSubmission, err.Error())
	}

	var warning string
	if app.RecipientEmail == "" {
		warning = fmt.Sprintf("%s at %s: no recipient email, manual follow-up required", app.JobTitle, app.CompanyName)
	} else if a := emailgate.Assess(app.RecipientEmail); a.Severity != emailgate.SeverityOK {
		app.EmailWarning = a.Recommendation
		warning = fmt.Sprintf("%s at %s: %s (%s)", app.JobTitle, app.CompanyName, a.Recommendation, app.RecipientEmail)
	}

	if err := b.queue.Put(ctx, app); err != nil {
		kind := KindPersist
		if errors.Is(err, queue.ErrExists) {
			kind = KindDuplicate
		}
		return nil, "", fail(ac.JobTitle, kind, err.Error())
	}
	pendingKeys[key] = true

	b.logger.Printf("[BRIDGE] Queued %s for %s at %s (score %.1f, manual email: %t)",
		app.ID, app.JobTitle, app.CompanyName, app.MatchScore, app.RequiresManualEmail)
	return app, warning, nil
}

func kindOf(err error, fallback string) string {
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return fallback
}

func duplicateKey(title, company string) string {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(title)) + "\x00" + fold.String(strings.TrimSpace(company))
}
