package db

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Motivation Letters
// -----------------------------------------------------------------------------

// SaveMotivationLetter stores a generated letter.
func (db *DB) SaveMotivationLetter(ctx context.Context, l *MotivationLetter) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO motivation_letters (job_url, job_title, company, subject_line,
		                                 letter_html, letter_text, email_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		l.JobURL, l.JobTitle, l.Company, l.SubjectLine, l.LetterHTML, l.LetterText, l.EmailText,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save motivation letter: %w", err)
	}
	return nil
}

// ListMotivationLetters returns all letters, newest first.
func (db *DB) ListMotivationLetters(ctx context.Context) ([]MotivationLetter, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_url, job_title, company, subject_line, letter_html,
		        letter_text, email_text, created_at
		 FROM motivation_letters ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list motivation letters: %w", err)
	}
	defer rows.Close()

	var letters []MotivationLetter
	for rows.Next() {
		var l MotivationLetter
		if err := rows.Scan(&l.ID, &l.JobURL, &l.JobTitle, &l.Company, &l.SubjectLine,
			&l.LetterHTML, &l.LetterText, &l.EmailText, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan motivation letter: %w", err)
		}
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

// -----------------------------------------------------------------------------
// Job Details
// -----------------------------------------------------------------------------

// UpsertJobDetail stores the scraped detail page of a posting, replacing an
// earlier scrape of the same URL.
func (db *DB) UpsertJobDetail(ctx context.Context, d *JobDetail) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO job_details (job_url, job_title, company, contact_name, contact_email,
		                          application_url, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_url) DO UPDATE SET
		     job_title = EXCLUDED.job_title,
		     company = EXCLUDED.company,
		     contact_name = EXCLUDED.contact_name,
		     contact_email = EXCLUDED.contact_email,
		     application_url = EXCLUDED.application_url,
		     description = EXCLUDED.description,
		     scraped_at = NOW()
		 RETURNING id, scraped_at`,
		d.JobURL, d.JobTitle, d.Company, d.ContactName, d.ContactEmail,
		d.ApplicationURL, d.Description,
	).Scan(&d.ID, &d.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert job detail: %w", err)
	}
	return nil
}

// ListJobDetails returns all scraped details, newest first.
func (db *DB) ListJobDetails(ctx context.Context) ([]JobDetail, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_url, job_title, company, contact_name, contact_email,
		        application_url, description, scraped_at
		 FROM job_details ORDER BY scraped_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job details: %w", err)
	}
	defer rows.Close()

	var details []JobDetail
	for rows.Next() {
		var d JobDetail
		if err := rows.Scan(&d.ID, &d.JobURL, &d.JobTitle, &d.Company, &d.ContactName,
			&d.ContactEmail, &d.ApplicationURL, &d.Description, &d.ScrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job detail: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}
