package db

import (
	"time"

	"github.com/google/uuid"
)

// JobMatch is one evaluated (or pending evaluation) job for a search term and CV.
// Rows are unique on (JobURL, SearchTerm, CVKey).
type JobMatch struct {
	ID           uuid.UUID          `json:"id"`
	JobURL       string             `json:"job_url"`
	SearchTerm   string             `json:"search_term"`
	CVKey        string             `json:"cv_key"`
	Title        string             `json:"title"`
	Company      string             `json:"company"`
	Location     string             `json:"location"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	OverallScore *float64           `json:"overall_score,omitempty"`
	Reasoning    *string            `json:"reasoning,omitempty"`
	RawSnapshot  map[string]any     `json:"raw_snapshot,omitempty"`
	ScrapedAt    time.Time          `json:"scraped_at"`
	MatchedAt    time.Time          `json:"matched_at"`
}

// IsEvaluated returns true once an overall score has been written.
func (m *JobMatch) IsEvaluated() bool {
	return m.OverallScore != nil
}

// JobMatchCreateInput is used when recording a newly crawled job.
type JobMatchCreateInput struct {
	JobURL       string
	SearchTerm   string
	CVKey        string
	Title        string
	Company      string
	Location     string
	Scores       map[string]float64
	OverallScore *float64
	Reasoning    string
	RawSnapshot  map[string]any
	ScrapedAt    time.Time
}

// EvaluationInput carries the evaluator's verdict for an existing match.
type EvaluationInput struct {
	Scores       map[string]float64
	OverallScore float64
	Reasoning    string
}

// MatchFilters holds optional filters for QueryMatches
type MatchFilters struct {
	SearchTerm string
	CVKey      string
	MinScore   *float64
	From       *time.Time
	To         *time.Time
	Location   string // substring, case-insensitive
	Limit      int
	Offset     int
}

// CVVersion describes one distinct CV file content.
type CVVersion struct {
	CVKey      string         `json:"cv_key"`
	FileName   string         `json:"file_name"`
	FilePath   string         `json:"file_path"`
	FileHash   string         `json:"file_hash"`
	UploadDate time.Time      `json:"upload_date"`
	Summary    *string        `json:"summary,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ScrapeHistoryEntry records the outcome of one crawled results page.
type ScrapeHistoryEntry struct {
	ID            int64         `json:"id"`
	RunID         uuid.UUID     `json:"run_id"`
	SearchTerm    string        `json:"search_term"`
	CVKey         string        `json:"cv_key"`
	PageNumber    int           `json:"page_number"`
	JobsFound     int           `json:"jobs_found"`
	NewJobs       int           `json:"new_jobs"`
	DuplicateJobs int           `json:"duplicate_jobs"`
	Duration      time.Duration `json:"duration"`
	EarlyExit     bool          `json:"early_exit"`
	ScrapedAt     time.Time     `json:"scraped_at"`
}

// ScrapeStats aggregates crawl history for one search term.
type ScrapeStats struct {
	SearchTerm    string  `json:"search_term"`
	Runs          int     `json:"runs"`
	Pages         int     `json:"pages"`
	JobsFound     int     `json:"jobs_found"`
	NewJobs       int     `json:"new_jobs"`
	DuplicateJobs int     `json:"duplicate_jobs"`
	EarlyExits    int     `json:"early_exits"`
	DedupRate     float64 `json:"dedup_rate"`
	AvgPageMillis float64 `json:"avg_page_ms"`
}

// DedupRate computes duplicates / found, or 0 when nothing was found.
func DedupRate(found, duplicates int) float64 {
	if found <= 0 {
		return 0
	}
	return float64(duplicates) / float64(found)
}

// ApplicationRecord is the persisted pipeline status of a job match.
// A match without a record is implicitly MATCHED.
type ApplicationRecord struct {
	JobMatchID uuid.UUID `json:"job_match_id"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
	Notes      string    `json:"notes"`
}

// StaleApplication joins an application record with its match for operator review.
type StaleApplication struct {
	ApplicationRecord
	Title   string `json:"title"`
	Company string `json:"company"`
	JobURL  string `json:"job_url"`
}

// StatusCounts holds explicit application counts per status plus the total
// number of matches in scope.
type StatusCounts struct {
	ByStatus     map[string]int
	TotalMatches int
}

// MotivationLetter is a generated cover letter tied to a job URL.
type MotivationLetter struct {
	ID          uuid.UUID `json:"id"`
	JobURL      string    `json:"job_url"`
	JobTitle    string    `json:"job_title"`
	Company     string    `json:"company"`
	SubjectLine string    `json:"subject_line"`
	LetterHTML  string    `json:"letter_html"`
	LetterText  string    `json:"letter_text"`
	EmailText   string    `json:"email_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobDetail is the scraped detail page of a posting, including contact data.
type JobDetail struct {
	ID             uuid.UUID `json:"id"`
	JobURL         string    `json:"job_url"`
	JobTitle       string    `json:"job_title"`
	Company        string    `json:"company"`
	ContactName    string    `json:"contact_name"`
	ContactEmail   string    `json:"contact_email"`
	ApplicationURL string    `json:"application_url"`
	Description    string    `json:"description"`
	ScrapedAt      time.Time `json:"scraped_at"`
}
