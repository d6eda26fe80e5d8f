package lifecycle

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/jobmatch/internal/db"
)

type memStore struct {
	matches map[uuid.UUID]string // id -> cv key
	records map[uuid.UUID]*db.ApplicationRecord
	now     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		matches: map[uuid.UUID]string{},
		records: map[uuid.UUID]*db.ApplicationRecord{},
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addMatch(cvKey string) uuid.UUID {
	id := uuid.New()
	m.matches[id] = cvKey
	return id
}

func (m *memStore) GetApplication(_ context.Context, id uuid.UUID) (*db.ApplicationRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) UpsertApplicationStatus(_ context.Context, id uuid.UUID, status string, notes *string) (bool, error) {
	if _, ok := m.matches[id]; !ok {
		return false, nil
	}
	r, ok := m.records[id]
	if !ok {
		r = &db.ApplicationRecord{JobMatchID: id}
		m.records[id] = r
	}
	r.Status = status
	if notes != nil {
		r.Notes = *notes
	}
	r.UpdatedAt = m.now
	return true, nil
}

func (m *memStore) AppendNote(_ context.Context, id uuid.UUID, note string) (bool, error) {
	if _, ok := m.matches[id]; !ok {
		return false, nil
	}
	r, ok := m.records[id]
	if !ok {
		r = &db.ApplicationRecord{JobMatchID: id, Status: "MATCHED"}
		m.records[id] = r
	}
	if r.Notes == "" {
		r.Notes = note
	} else {
		r.Notes += "\n" + note
	}
	r.UpdatedAt = m.now
	return true, nil
}

func (m *memStore) CountByStatus(_ context.Context, cvKey string) (*db.StatusCounts, error) {
	c := &db.StatusCounts{ByStatus: map[string]int{}}
	for id, key := range m.matches {
		if cvKey != "" && key != cvKey {
			continue
		}
		c.TotalMatches++
		if r, ok := m.records[id]; ok {
			c.ByStatus[r.Status]++
		}
	}
	return c, nil
}

func (m *memStore) ListApplicationsByStatus(_ context.Context, status string, before time.Time) ([]db.StaleApplication, error) {
	var out []db.StaleApplication
	for _, r := range m.records {
		if r.Status == status && r.UpdatedAt.Before(before) {
			out = append(out, db.StaleApplication{ApplicationRecord: *r})
		}
	}
	return out, nil
}

type recordingNotifier struct {
	got [][]db.StaleApplication
	err error
}

func (n *recordingNotifier) NotifyStale(_ context.Context, apps []db.StaleApplication) error {
	n.got = append(n.got, apps)
	return n.err
}

func newTestService(store *memStore, n StaleNotifier) *Service {
	s := NewService(store, n, log.New(io.Discard, "", 0))
	s.now = func() time.Time { return store.now }
	return s
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"MATCHED", StatusMatched, false},
		{"interview", StatusInterview, false},
		{" Offer ", StatusOffer, false},
		{"HIRED", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				var invalid *InvalidStatusError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStatus_DefaultsToMatched(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	id := store.addMatch("cv1")

	st, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, st)

	rec, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "MATCHED", rec.Status)
}

func TestSetStatus_AnyTransition(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	id := store.addMatch("cv1")

	path := []Status{StatusRejected, StatusInterested, StatusOffer, StatusMatched, StatusArchived}
	for _, st := range path {
		ok, err := svc.SetStatus(ctx, id, st, nil)
		require.NoError(t, err)
		require.True(t, ok)
		got, err := svc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
}

func TestSetStatus_UnknownMatchAndInvalidStatus(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	ok, err := svc.SetStatus(context.Background(), uuid.New(), StatusApplied, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.SetStatus(context.Background(), store.addMatch("cv1"), Status("HIRED"), nil)
	var invalid *InvalidStatusError
	assert.ErrorAs(t, err, &invalid)
}

func TestAddNote(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	id := store.addMatch("cv1")

	notes := "first contact"
	_, err := svc.SetStatus(ctx, id, StatusInterested, &notes)
	require.NoError(t, err)

	ok, err := svc.AddNote(ctx, id, "called recruiter")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "INTERESTED", rec.Status, "notes never change status")
	assert.Equal(t, "first contact\ncalled recruiter", rec.Notes)

	_, err = svc.AddNote(ctx, id, "  ")
	assert.Error(t, err)
}

func TestPipelineStats(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.addMatch("cv1")
	}
	applied := store.addMatch("cv1")
	rejected := store.addMatch("cv1")
	explicitMatched := store.addMatch("cv1")
	other := store.addMatch("cv2")

	_, _ = svc.SetStatus(ctx, applied, StatusApplied, nil)
	_, _ = svc.SetStatus(ctx, rejected, StatusRejected, nil)
	_, _ = svc.SetStatus(ctx, explicitMatched, StatusMatched, nil)
	_, _ = svc.SetStatus(ctx, other, StatusOffer, nil)

	stats, err := svc.PipelineStats(ctx, "cv1")
	require.NoError(t, err)
	assert.Equal(t, 6, stats["MATCHED"])
	assert.Equal(t, 1, stats["APPLIED"])
	assert.Equal(t, 1, stats["REJECTED"])
	assert.Equal(t, 0, stats["OFFER"])
	assert.Equal(t, 7, stats[TotalActive])
	assert.Equal(t, 1, stats[TotalClosed])
	assert.Equal(t, 8, stats[TotalAll])

	all, err := svc.PipelineStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 9, all[TotalAll])

	sum := 0
	for _, st := range AllStatuses {
		sum += all[string(st)]
	}
	assert.Equal(t, all[TotalAll], sum)
	assert.Equal(t, all[TotalAll], all[TotalActive]+all[TotalClosed])
}

func TestIsStale(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rec  *db.ApplicationRecord
		want bool
	}{
		{"nil record", nil, false},
		{"preparing 8 days", &db.ApplicationRecord{Status: "PREPARING", UpdatedAt: now.Add(-8 * 24 * time.Hour)}, true},
		{"preparing exactly 7 days", &db.ApplicationRecord{Status: "PREPARING", UpdatedAt: now.Add(-StaleAfter)}, false},
		{"preparing 2 days", &db.ApplicationRecord{Status: "PREPARING", UpdatedAt: now.Add(-48 * time.Hour)}, false},
		{"applied 30 days", &db.ApplicationRecord{Status: "APPLIED", UpdatedAt: now.Add(-30 * 24 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStale(tt.rec, now))
		})
	}
}

func TestListStale(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	old := store.addMatch("cv1")
	fresh := store.addMatch("cv1")
	oldApplied := store.addMatch("cv1")

	store.now = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _ = svc.SetStatus(ctx, old, StatusPreparing, nil)
	_, _ = svc.SetStatus(ctx, oldApplied, StatusApplied, nil)
	store.now = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	_, _ = svc.SetStatus(ctx, fresh, StatusPreparing, nil)

	store.now = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	stale, err := svc.ListStale(ctx)
	require.NoError(t, err, "notifier failure is not fatal")
	require.Len(t, stale, 1)
	assert.Equal(t, old, stale[0].JobMatchID)
	require.Len(t, notifier.got, 1)

	st, err := svc.GetStatus(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, st, "stale applications are never auto-transitioned")
}
