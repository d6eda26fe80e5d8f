package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMatchWhere(t *testing.T) {
	minScore := 7.5
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	tests := []struct {
		name      string
		filters   MatchFilters
		wantWhere string
		wantArgs  []any
		wantNext  int
	}{
		{
			name:      "no filters",
			filters:   MatchFilters{},
			wantWhere: "",
			wantArgs:  nil,
			wantNext:  1,
		},
		{
			name:      "term and cv",
			filters:   MatchFilters{SearchTerm: "go developer", CVKey: "abcd1234abcd1234"},
			wantWhere: "WHERE search_term = $1 AND cv_key = $2",
			wantArgs:  []any{"go developer", "abcd1234abcd1234"},
			wantNext:  3,
		},
		{
			name: "all filters",
			filters: MatchFilters{
				SearchTerm: "go", CVKey: "k", MinScore: &minScore,
				From: &from, To: &to, Location: "Berlin",
			},
			wantWhere: "WHERE search_term = $1 AND cv_key = $2 AND overall_score >= $3 AND matched_at >= $4 AND matched_at <= $5 AND location ILIKE $6",
			wantArgs:  []any{"go", "k", 7.5, from, to, "%Berlin%"},
			wantNext:  7,
		},
		{
			name:      "location wildcards escaped",
			filters:   MatchFilters{Location: " 100%_remote "},
			wantWhere: "WHERE location ILIKE $1",
			wantArgs:  []any{`%100\%\_remote%`},
			wantNext:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, next := buildMatchWhere(tt.filters)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultMatchLimit, 0},
		{-5, -1, defaultMatchLimit, 0},
		{10, 20, 10, 20},
		{maxMatchLimit + 1, 0, maxMatchLimit, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.limit, tt.offset), func(t *testing.T) {
			l, o := clampPage(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLimit, l)
			assert.Equal(t, tt.wantOffset, o)
		})
	}
}

func TestMarshalOptional(t *testing.T) {
	b, err := marshalOptional(map[string]float64{})
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = marshalOptional(map[string]float64{"skills": 8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"skills": 8}`, string(b))
}

func TestJobMatch_IsEvaluated(t *testing.T) {
	score := 6.0
	assert.False(t, (&JobMatch{}).IsEvaluated())
	assert.True(t, (&JobMatch{OverallScore: &score}).IsEvaluated())
}

func TestDedupRate(t *testing.T) {
	assert.Equal(t, 0.0, DedupRate(0, 0))
	assert.Equal(t, 0.0, DedupRate(-1, 3))
	assert.Equal(t, 0.25, DedupRate(20, 5))
	assert.Equal(t, 1.0, DedupRate(10, 10))
}

func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}
	wrapped := fmt.Errorf("insert failed: %w", unique)

	assert.True(t, IsUniqueViolation(unique))
	assert.True(t, IsUniqueViolation(wrapped))
	assert.False(t, IsUniqueViolation(fk))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(unique))
}
