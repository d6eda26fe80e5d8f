package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/db"
)

// StaleAfter is how long a PREPARING application may sit untouched before it
// is flagged.
const StaleAfter = 7 * 24 * time.Hour

// Store is the persistence the service needs.
type Store interface {
	GetApplication(ctx context.Context, jobMatchID uuid.UUID) (*db.ApplicationRecord, error)
	UpsertApplicationStatus(ctx context.Context, jobMatchID uuid.UUID, status string, notes *string) (bool, error)
	AppendNote(ctx context.Context, jobMatchID uuid.UUID, note string) (bool, error)
	CountByStatus(ctx context.Context, cvKey string) (*db.StatusCounts, error)
	ListApplicationsByStatus(ctx context.Context, status string, updatedBefore time.Time) ([]db.StaleApplication, error)
}

// StaleNotifier receives the stale list for operator attention.
type StaleNotifier interface {
	NotifyStale(ctx context.Context, apps []db.StaleApplication) error
}

// Service manages application statuses.
type Service struct {
	store    Store
	notifier StaleNotifier
	logger   *log.Logger
	now      func() time.Time
}

// NewService creates a lifecycle service. notifier may be nil.
func NewService(store Store, notifier StaleNotifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// GetStatus returns the status of a match, MATCHED when nothing was recorded.
func (s *Service) GetStatus(ctx context.Context, jobMatchID uuid.UUID) (Status, error) {
	rec, err := s.store.GetApplication(ctx, jobMatchID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return StatusMatched, nil
	}
	return Status(rec.Status), nil
}

// Get returns the full record, synthesizing a MATCHED record when none exists.
func (s *Service) Get(ctx context.Context, jobMatchID uuid.UUID) (*db.ApplicationRecord, error) {
	rec, err := s.store.GetApplication(ctx, jobMatchID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &db.ApplicationRecord{JobMatchID: jobMatchID, Status: string(StatusMatched)}, nil
	}
	return rec, nil
}

// SetStatus moves a match to status. Any transition is allowed. Returns false
// when the match does not exist.
func (s *Service) SetStatus(ctx context.Context, jobMatchID uuid.UUID, status Status, notes *string) (bool, error) {
	if !status.Valid() {
		return false, &InvalidStatusError{Value: string(status)}
	}
	ok, err := s.store.UpsertApplicationStatus(ctx, jobMatchID, string(status), notes)
	if err != nil {
		return false, fmt.Errorf("failed to set status: %w", err)
	}
	if ok {
		s.logger.Printf("[LIFECYCLE] %s -> %s", jobMatchID, status)
	} else {
		s.logger.Printf("[LIFECYCLE] Unknown job match %s, status not set", jobMatchID)
	}
	return ok, nil
}

// AddNote appends a note without changing the status.
func (s *Service) AddNote(ctx context.Context, jobMatchID uuid.UUID, note string) (bool, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return false, fmt.Errorf("note is empty")
	}
	ok, err := s.store.AppendNote(ctx, jobMatchID, note)
	if err != nil {
		return false, fmt.Errorf("failed to add note: %w", err)
	}
	return ok, nil
}

// PipelineStats returns a count per status plus TOTAL_ACTIVE, TOTAL_CLOSED and
// TOTAL_ALL. Matches without a record are counted as MATCHED. An empty cvKey
// covers every CV version.
func (s *Service) PipelineStats(ctx context.Context, cvKey string) (map[string]int, error) {
	counts, err := s.store.CountByStatus(ctx, cvKey)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int, len(AllStatuses)+3)
	explicit := 0
	for _, st := range AllStatuses {
		if st == StatusMatched {
			continue
		}
		n := counts.ByStatus[string(st)]
		stats[string(st)] = n
		explicit += n
	}
	matched := counts.TotalMatches - explicit
	if matched < 0 {
		matched = 0
	}
	stats[string(StatusMatched)] = matched

	for _, st := range AllStatuses {
		if st.Active() {
			stats[TotalActive] += stats[string(st)]
		} else {
			stats[TotalClosed] += stats[string(st)]
		}
	}
	stats[TotalAll] = stats[TotalActive] + stats[TotalClosed]
	return stats, nil
}

// IsStale reports whether a record is PREPARING and untouched for longer than
// StaleAfter.
func IsStale(rec *db.ApplicationRecord, now time.Time) bool {
	if rec == nil || Status(rec.Status) != StatusPreparing {
		return false
	}
	return now.Sub(rec.UpdatedAt) > StaleAfter
}

// ListStale returns stale PREPARING applications, oldest first. Nothing is
// transitioned; when a notifier is configured the list is also pushed to it.
func (s *Service) ListStale(ctx context.Context) ([]db.StaleApplication, error) {
	apps, err := s.store.ListApplicationsByStatus(ctx, string(StatusPreparing), s.now().Add(-StaleAfter))
	if err != nil {
		return nil, err
	}
	if len(apps) > 0 {
		s.logger.Printf("[LIFECYCLE] %d applications stuck in PREPARING for more than %s", len(apps), StaleAfter)
		if s.notifier != nil {
			if err := s.notifier.NotifyStale(ctx, apps); err != nil {
				s.logger.Printf("[LIFECYCLE] Failed to notify about stale applications: %v", err)
			}
		}
	}
	return apps, nil
}
