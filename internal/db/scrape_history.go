package db

import (
	"context"
	"fmt"
)

// InsertScrapeHistory appends one crawled-page record.
func (db *DB) InsertScrapeHistory(ctx context.Context, e *ScrapeHistoryEntry) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO scrape_history (run_id, search_term, cv_key, page_number, jobs_found,
		                             new_jobs, duplicate_jobs, duration_ms, early_exit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, scraped_at`,
		e.RunID, e.SearchTerm, e.CVKey, e.PageNumber, e.JobsFound,
		e.NewJobs, e.DuplicateJobs, e.Duration.Milliseconds(), e.EarlyExit,
	).Scan(&e.ID, &e.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scrape history: %w", err)
	}
	return nil
}

// ScrapeStats aggregates crawl history per search term. An empty searchTerm
// returns every term.
func (db *DB) ScrapeStats(ctx context.Context, searchTerm string) ([]ScrapeStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT search_term,
		        COUNT(DISTINCT run_id),
		        COUNT(*),
		        COALESCE(SUM(jobs_found), 0),
		        COALESCE(SUM(new_jobs), 0),
		        COALESCE(SUM(duplicate_jobs), 0),
		        COUNT(*) FILTER (WHERE early_exit),
		        COALESCE(AVG(duration_ms), 0)::float8
		 FROM scrape_history
		 WHERE $1 = '' OR search_term = $1
		 GROUP BY search_term
		 ORDER BY search_term`,
		searchTerm,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape stats: %w", err)
	}
	defer rows.Close()

	var stats []ScrapeStats
	for rows.Next() {
		var s ScrapeStats
		if err := rows.Scan(&s.SearchTerm, &s.Runs, &s.Pages, &s.JobsFound, &s.NewJobs,
			&s.DuplicateJobs, &s.EarlyExits, &s.AvgPageMillis); err != nil {
			return nil, fmt.Errorf("failed to scan scrape stats: %w", err)
		}
		s.DedupRate = DedupRate(s.JobsFound, s.DuplicateJobs)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
