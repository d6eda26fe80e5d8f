package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	defaultMatchLimit = 50
	maxMatchLimit     = 500
)

const jobMatchColumns = `id, job_url, search_term, cv_key, title, company, location,
		        scores, overall_score, reasoning, raw_snapshot, scraped_at, matched_at`

// -----------------------------------------------------------------------------
// Job Match Methods
// -----------------------------------------------------------------------------

// JobExists reports whether the (url, searchTerm, cvKey) triple is already stored.
// url must already be canonical.
func (db *DB) JobExists(ctx context.Context, url, searchTerm, cvKey string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM job_matches
		     WHERE search_term = $1 AND cv_key = $2 AND job_url = $3
		 )`,
		searchTerm, cvKey, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return exists, nil
}

// InsertJobMatch stores a new match. It returns a nil id when the triple already
// exists; a duplicate is a normal outcome, not an error.
func (db *DB) InsertJobMatch(ctx context.Context, input *JobMatchCreateInput) (*uuid.UUID, error) {
	if input == nil {
		return nil, fmt.Errorf("job match input is required")
	}
	if input.JobURL == "" || input.SearchTerm == "" || input.CVKey == "" {
		return nil, fmt.Errorf("job_url, search_term and cv_key are required")
	}

	scoresJSON, err := marshalOptional(input.Scores)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scores: %w", err)
	}
	snapshotJSON, err := marshalOptional(input.RawSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw snapshot: %w", err)
	}

	var reasoning *string
	if input.Reasoning != "" {
		reasoning = &input.Reasoning
	}
	scrapedAt := input.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}

	var id uuid.UUID
	err = db.pool.QueryRow(ctx,
		`INSERT INTO job_matches (job_url, search_term, cv_key, title, company, location,
		                          scores, overall_score, reasoning, raw_snapshot, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (job_url, search_term, cv_key) DO NOTHING
		 RETURNING id`,
		input.JobURL, input.SearchTerm, input.CVKey, input.Title, input.Company, input.Location,
		scoresJSON, input.OverallScore, reasoning, snapshotJSON, scrapedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || IsUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert job match: %w", err)
	}

	return &id, nil
}

// GetJobMatch retrieves a match by id. Returns nil, nil when absent.
func (db *DB) GetJobMatch(ctx context.Context, id uuid.UUID) (*JobMatch, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+jobMatchColumns+` FROM job_matches WHERE id = $1`, id)

	m, err := scanJobMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job match: %w", err)
	}
	return m, nil
}

// UpdateEvaluation writes scores for a match that has not been evaluated yet.
// Returns ErrNotFound when the match is missing or already carries a score.
func (db *DB) UpdateEvaluation(ctx context.Context, id uuid.UUID, eval *EvaluationInput) error {
	scoresJSON, err := marshalOptional(eval.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE job_matches
		 SET scores = $2, overall_score = $3, reasoning = $4, matched_at = NOW()
		 WHERE id = $1 AND overall_score IS NULL`,
		id, scoresJSON, eval.OverallScore, eval.Reasoning,
	)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnevaluated returns matches still waiting for a score, oldest first.
func (db *DB) ListUnevaluated(ctx context.Context, searchTerm, cvKey string, limit int) ([]JobMatch, error) {
	if limit <= 0 {
		limit = defaultMatchLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+jobMatchColumns+`
		 FROM job_matches
		 WHERE overall_score IS NULL AND search_term = $1 AND cv_key = $2
		 ORDER BY scraped_at ASC
		 LIMIT $3`,
		searchTerm, cvKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unevaluated matches: %w", err)
	}
	defer rows.Close()

	var matches []JobMatch
	for rows.Next() {
		m, err := scanJobMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// QueryMatches lists matches with optional filters, best score first, then most
// recent. Returns the page and the total number of rows matching the filters.
func (db *DB) QueryMatches(ctx context.Context, filters MatchFilters) ([]JobMatch, int, error) {
	whereClause, args, argIndex := buildMatchWhere(filters)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM job_matches %s", whereClause)
	var total int
	if err := db.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count job matches: %w", err)
	}

	limit, offset := clampPage(filters.Limit, filters.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s
		 FROM job_matches %s
		 ORDER BY overall_score DESC NULLS LAST, matched_at DESC
		 LIMIT $%d OFFSET $%d`,
		jobMatchColumns, whereClause, argIndex, argIndex+1,
	)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query job matches: %w", err)
	}
	defer rows.Close()

	var matches []JobMatch
	for rows.Next() {
		m, err := scanJobMatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job match: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return matches, total, nil
}

// buildMatchWhere renders the WHERE clause for QueryMatches. The returned index
// is the next free positional parameter.
func buildMatchWhere(f MatchFilters) (string, []any, int) {
	var conditions []string
	var args []any
	argIndex := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIndex))
		args = append(args, val)
		argIndex++
	}

	if f.SearchTerm != "" {
		add("search_term = $%d", f.SearchTerm)
	}
	if f.CVKey != "" {
		add("cv_key = $%d", f.CVKey)
	}
	if f.MinScore != nil {
		add("overall_score >= $%d", *f.MinScore)
	}
	if f.From != nil {
		add("matched_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("matched_at <= $%d", *f.To)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		add("location ILIKE $%d", "%"+escapeLike(loc)+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args, argIndex
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// escapeLike escapes LIKE wildcards so user input is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanJobMatch(row pgx.Row) (*JobMatch, error) {
	var m JobMatch
	var scoresJSON, snapshotJSON []byte

	err := row.Scan(&m.ID, &m.JobURL, &m.SearchTerm, &m.CVKey, &m.Title, &m.Company,
		&m.Location, &scoresJSON, &m.OverallScore, &m.Reasoning, &snapshotJSON,
		&m.ScrapedAt, &m.MatchedAt)
	if err != nil {
		return nil, err
	}

	if scoresJSON != nil {
		_ = json.Unmarshal(scoresJSON, &m.Scores)
	}
	if snapshotJSON != nil {
		_ = json.Unmarshal(snapshotJSON, &m.RawSnapshot)
	}
	return &m, nil
}

// marshalOptional returns nil for empty maps so the column stays NULL.
func marshalOptional[M ~map[K]V, K comparable, V any](m M) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
