package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetApplication retrieves the status record for a match. Returns nil, nil when
// no record exists.
func (db *DB) GetApplication(ctx context.Context, jobMatchID uuid.UUID) (*ApplicationRecord, error) {
	var r ApplicationRecord
	err := db.pool.QueryRow(ctx,
		`SELECT job_match_id, status, updated_at, notes
		 FROM applications WHERE job_match_id = $1`,
		jobMatchID,
	).Scan(&r.JobMatchID, &r.Status, &r.UpdatedAt, &r.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &r, nil
}

// UpsertApplicationStatus sets the status of a match, creating the record on
// first use. A nil notes leaves existing notes untouched. Returns false when
// the match does not exist.
func (db *DB) UpsertApplicationStatus(ctx context.Context, jobMatchID uuid.UUID, status string, notes *string) (bool, error) {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO applications (job_match_id, status, notes, updated_at)
		 VALUES ($1, $2, COALESCE($3, ''), NOW())
		 ON CONFLICT (job_match_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     notes = COALESCE($3, applications.notes),
		     updated_at = NOW()`,
		jobMatchID, status, notes,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert application status: %w", err)
	}
	return true, nil
}

// AppendNote appends a line to the notes of a match, creating a MATCHED record
// if none exists. The status is left unchanged. Returns false when the match
// does not exist.
func (db *DB) AppendNote(ctx context.Context, jobMatchID uuid.UUID, note string) (bool, error) {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO applications (job_match_id, status, notes, updated_at)
		 VALUES ($1, 'MATCHED', $2, NOW())
		 ON CONFLICT (job_match_id) DO UPDATE SET
		     notes = CASE WHEN applications.notes = '' THEN $2
		                  ELSE applications.notes || E'\n' || $2 END,
		     updated_at = NOW()`,
		jobMatchID, note,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to append note: %w", err)
	}
	return true, nil
}

// CountByStatus counts explicit application records per status together with
// the total number of matches. An empty cvKey counts across all CV versions.
func (db *DB) CountByStatus(ctx context.Context, cvKey string) (*StatusCounts, error) {
	counts := &StatusCounts{ByStatus: make(map[string]int)}

	rows, err := db.pool.Query(ctx,
		`SELECT a.status, COUNT(*)
		 FROM applications a
		 JOIN job_matches m ON m.id = a.job_match_id
		 WHERE $1 = '' OR m.cv_key = $1
		 GROUP BY a.status`,
		cvKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_matches WHERE $1 = '' OR cv_key = $1`,
		cvKey,
	).Scan(&counts.TotalMatches)
	if err != nil {
		return nil, fmt.Errorf("failed to count job matches: %w", err)
	}

	return counts, nil
}

// ListApplicationsByStatus returns records in a status whose last update is
// before the cutoff, oldest first.
func (db *DB) ListApplicationsByStatus(ctx context.Context, status string, updatedBefore time.Time) ([]StaleApplication, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.job_match_id, a.status, a.updated_at, a.notes, m.title, m.company, m.job_url
		 FROM applications a
		 JOIN job_matches m ON m.id = a.job_match_id
		 WHERE a.status = $1 AND a.updated_at < $2
		 ORDER BY a.updated_at ASC`,
		status, updatedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []StaleApplication
	for rows.Next() {
		var s StaleApplication
		if err := rows.Scan(&s.JobMatchID, &s.Status, &s.UpdatedAt, &s.Notes,
			&s.Title, &s.Company, &s.JobURL); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
