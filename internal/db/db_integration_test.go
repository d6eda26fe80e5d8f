//go:build integration

package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestDB connects to TEST_DATABASE_URL, or starts a throwaway Postgres
// container when DOCKER_TESTS=1. Otherwise the test is skipped.
func getTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		if os.Getenv("DOCKER_TESTS") != "1" {
			t.Skip("TEST_DATABASE_URL not set, skipping integration test")
		}
		dsn = startPostgres(t)
	}

	db, err := Connect(ctx, dsn)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, db.EnsureSchema(ctx))
	t.Cleanup(db.Close)
	return db
}

func startPostgres(t *testing.T) string {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "could not construct docker pool")

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_USER=jobmatch",
			"POSTGRES_DB=jobmatch",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "could not start postgres")
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(120)

	dsn := fmt.Sprintf("postgres://jobmatch:secret@%s/jobmatch?sslmode=disable",
		resource.GetHostPort("5432/tcp"))

	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		db, err := Connect(context.Background(), dsn)
		if err != nil {
			return err
		}
		db.Close()
		return nil
	})
	require.NoError(t, err, "postgres did not become ready")
	return dsn
}

func cleanupMatches(t *testing.T, db *DB, cvKey string) {
	t.Helper()
	_, _ = db.pool.Exec(context.Background(), "DELETE FROM job_matches WHERE cv_key = $1", cvKey)
	_, _ = db.pool.Exec(context.Background(), "DELETE FROM scrape_history WHERE cv_key = $1", cvKey)
}

func testCVKey() string {
	return uuid.New().String()[:16]
}

func TestIntegration_InsertJobMatch_Dedup(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	cvKey := testCVKey()
	defer cleanupMatches(t, db, cvKey)

	input := &JobMatchCreateInput{
		JobURL:     "https://www.stepstone.de/job/integration/" + uuid.New().String()[:8],
		SearchTerm: "go developer",
		CVKey:      cvKey,
		Title:      "Go Developer",
		Company:    "Test GmbH",
		Location:   "Berlin",
	}

	id, err := db.InsertJobMatch(ctx, input)
	require.NoError(t, err)
	require.NotNil(t, id)

	again, err := db.InsertJobMatch(ctx, input)
	require.NoError(t, err)
	assert.Nil(t, again, "second insert of the same triple is a duplicate")

	exists, err := db.JobExists(ctx, input.JobURL, input.SearchTerm, cvKey)
	require.NoError(t, err)
	assert.True(t, exists)

	// Same job under another search term is a distinct match.
	other := *input
	other.SearchTerm = "backend engineer"
	otherID, err := db.InsertJobMatch(ctx, &other)
	require.NoError(t, err)
	assert.NotNil(t, otherID)
}

func TestIntegration_InsertJobMatch_ConcurrentSingleWinner(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	cvKey := testCVKey()
	defer cleanupMatches(t, db, cvKey)

	input := &JobMatchCreateInput{
		JobURL:     "https://www.stepstone.de/job/race/1",
		SearchTerm: "race",
		CVKey:      cvKey,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := db.InsertJobMatch(ctx, input)
			assert.NoError(t, err)
			if id != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestIntegration_QueryMatches_Ordering(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	cvKey := testCVKey()
	defer cleanupMatches(t, db, cvKey)

	scores := []float64{4, 9, 6}
	for i, s := range scores {
		score := s
		_, err := db.InsertJobMatch(ctx, &JobMatchCreateInput{
			JobURL:       fmt.Sprintf("https://www.stepstone.de/job/q/%d", i),
			SearchTerm:   "query",
			CVKey:        cvKey,
			Location:     "Hamburg",
			OverallScore: &score,
		})
		require.NoError(t, err)
	}
	_, err := db.InsertJobMatch(ctx, &JobMatchCreateInput{
		JobURL: "https://www.stepstone.de/job/q/unscored", SearchTerm: "query", CVKey: cvKey,
	})
	require.NoError(t, err)

	matches, total, err := db.QueryMatches(ctx, MatchFilters{CVKey: cvKey})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, matches, 4)
	assert.Equal(t, 9.0, *matches[0].OverallScore)
	assert.Equal(t, 6.0, *matches[1].OverallScore)
	assert.Nil(t, matches[3].OverallScore)

	minScore := 5.0
	matches, total, err = db.QueryMatches(ctx, MatchFilters{CVKey: cvKey, MinScore: &minScore, Location: "hamb"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, matches, 2)

	matches, _, err = db.QueryMatches(ctx, MatchFilters{CVKey: cvKey, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 6.0, *matches[0].OverallScore)
}

func TestIntegration_CVVersion_Duplicate(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	key := testCVKey()
	defer func() { _, _ = db.pool.Exec(ctx, "DELETE FROM cv_versions WHERE cv_key = $1", key) }()

	v := &CVVersion{CVKey: key, FileName: "cv.pdf", FilePath: "/tmp/cv.pdf", FileHash: key}
	created, err := db.InsertCVVersion(ctx, v)
	require.NoError(t, err)
	assert.False(t, created.UploadDate.IsZero())

	_, err = db.InsertCVVersion(ctx, v)
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := db.GetCVVersion(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cv.pdf", got.FileName)
}

func TestIntegration_Applications(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	cvKey := testCVKey()
	defer cleanupMatches(t, db, cvKey)

	id, err := db.InsertJobMatch(ctx, &JobMatchCreateInput{
		JobURL: "https://www.stepstone.de/job/app/1", SearchTerm: "apps", CVKey: cvKey,
	})
	require.NoError(t, err)
	require.NotNil(t, id)

	rec, err := db.GetApplication(ctx, *id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := db.UpsertApplicationStatus(ctx, *id, "PREPARING", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.AppendNote(ctx, *id, "called recruiter")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = db.GetApplication(ctx, *id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "PREPARING", rec.Status)
	assert.Equal(t, "called recruiter", rec.Notes)

	ok, err = db.UpsertApplicationStatus(ctx, uuid.New(), "APPLIED", nil)
	require.NoError(t, err)
	assert.False(t, ok, "unknown match is reported, not created")

	counts, err := db.CountByStatus(ctx, cvKey)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.TotalMatches)
	assert.Equal(t, 1, counts.ByStatus["PREPARING"])

	stale, err := db.ListApplicationsByStatus(ctx, "PREPARING", time.Now().Add(time.Minute))
	require.NoError(t, err)
	found := false
	for _, s := range stale {
		if s.JobMatchID == *id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestIntegration_ScrapeStats(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	cvKey := testCVKey()
	defer cleanupMatches(t, db, cvKey)

	term := "stats-" + cvKey
	runID := uuid.New()
	entries := []ScrapeHistoryEntry{
		{RunID: runID, SearchTerm: term, CVKey: cvKey, PageNumber: 1, JobsFound: 20, NewJobs: 15, DuplicateJobs: 5, Duration: time.Second},
		{RunID: runID, SearchTerm: term, CVKey: cvKey, PageNumber: 2, JobsFound: 20, NewJobs: 0, DuplicateJobs: 20, Duration: time.Second, EarlyExit: true},
	}
	for i := range entries {
		require.NoError(t, db.InsertScrapeHistory(ctx, &entries[i]))
		assert.NotZero(t, entries[i].ID)
	}

	stats, err := db.ScrapeStats(ctx, term)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Runs)
	assert.Equal(t, 2, stats[0].Pages)
	assert.Equal(t, 1, stats[0].EarlyExits)
	assert.InDelta(t, 25.0/40.0, stats[0].DedupRate, 1e-9)
}
