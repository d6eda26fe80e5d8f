// Package bridge turns a selected job match, its generated letter and any
// scraped contact details into one queued outbound application.
package bridge

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/urlnorm"
)

// DefaultRecipientName is used when no contact name was scraped.
const DefaultRecipientName = "Hiring Team"

// ApplicationContext gathers everything known about one match before it is
// transformed into a queue record.
type ApplicationContext struct {
	Match          *db.JobMatch
	Letter         *db.MotivationLetter
	Detail         *db.JobDetail
	JobTitle       string
	CompanyName    string
	RecipientEmail string
	RecipientName  string
	ApplicationURL string
	SubjectLine    string
	LetterBody     string
	MatchScore     *float64
}

// ContextError reports why a context could not be built or failed validation.
type ContextError struct {
	Kind     string
	Problems []string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// Error kinds reported per batch item.
const (
	KindNotFound     = "not_found"
	KindLookup       = "lookup_failed"
	KindContextBuild = "context_build_failed"
	KindValidation   = "validation_failed"
	KindSubmission   = "submission_invalid"
	KindDuplicate    = "duplicate"
	KindPersist      = "persist_failed"
)

const (
	contextBuildMessage   = "context build failed"
	missingLetterDetails  = "no motivation letter found for job"
	invalidScoreMessage   = "Invalid match_score"
	defaultSubjectPattern = "Application: %s"
)

// sameText compares two strings ignoring Unicode case and surrounding space.
func sameText(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// findLetter matches by job URL first, then by (title, company).
func findLetter(n *urlnorm.Normalizer, m *db.JobMatch, letters []db.MotivationLetter) *db.MotivationLetter {
	for i := range letters {
		if n.URLsMatch(letters[i].JobURL, m.JobURL) {
			return &letters[i]
		}
	}
	for i := range letters {
		if sameText(letters[i].JobTitle, m.Title) && sameText(letters[i].Company, m.Company) {
			return &letters[i]
		}
	}
	return nil
}

// findDetail uses the same URL-then-title strategy as findLetter.
func findDetail(n *urlnorm.Normalizer, m *db.JobMatch, details []db.JobDetail) *db.JobDetail {
	for i := range details {
		if n.URLsMatch(details[i].JobURL, m.JobURL) {
			return &details[i]
		}
	}
	for i := range details {
		if sameText(details[i].JobTitle, m.Title) && sameText(details[i].Company, m.Company) {
			return &details[i]
		}
	}
	return nil
}

// BuildContext assembles the context for one match. A missing letter is an
// error; a missing detail only leaves contact fields empty.
func BuildContext(n *urlnorm.Normalizer, m *db.JobMatch, letters []db.MotivationLetter, details []db.JobDetail) (*ApplicationContext, error) {
	letter := findLetter(n, m, letters)
	if letter == nil {
		return nil, &ContextError{Kind: KindContextBuild, Problems: []string{contextBuildMessage, missingLetterDetails}}
	}

	ac := &ApplicationContext{
		Match:          m,
		Letter:         letter,
		JobTitle:       strings.TrimSpace(m.Title),
		CompanyName:    strings.TrimSpace(m.Company),
		ApplicationURL: m.JobURL,
		SubjectLine:    strings.TrimSpace(letter.SubjectLine),
		LetterBody:     strings.TrimSpace(letter.LetterHTML),
		MatchScore:     m.OverallScore,
	}
	if ac.JobTitle == "" {
		ac.JobTitle = strings.TrimSpace(letter.JobTitle)
	}
	if ac.CompanyName == "" {
		ac.CompanyName = strings.TrimSpace(letter.Company)
	}
	if ac.LetterBody == "" {
		ac.LetterBody = strings.TrimSpace(letter.LetterText)
	}
	if ac.SubjectLine == "" && ac.JobTitle != "" {
		ac.SubjectLine = fmt.Sprintf(defaultSubjectPattern, ac.JobTitle)
	}

	if d := findDetail(n, m, details); d != nil {
		ac.Detail = d
		ac.RecipientEmail = strings.TrimSpace(d.ContactEmail)
		ac.RecipientName = strings.TrimSpace(d.ContactName)
		if u := strings.TrimSpace(d.ApplicationURL); isWebURL(u) {
			ac.ApplicationURL = u
		}
		if ac.CompanyName == "" {
			ac.CompanyName = strings.TrimSpace(d.Company)
		}
	}
	return ac, nil
}

// Validate checks required fields and the score range.
func (ac *ApplicationContext) Validate() error {
	var problems []string
	if ac.JobTitle == "" {
		problems = append(problems, "job_title is required")
	}
	if ac.CompanyName == "" {
		problems = append(problems, "company_name is required")
	}
	if ac.LetterBody == "" {
		problems = append(problems, "motivation_letter is required")
	}
	if ac.SubjectLine == "" {
		problems = append(problems, "subject_line is required")
	}
	switch {
	case ac.MatchScore == nil:
		problems = append(problems, invalidScoreMessage+": job has not been evaluated")
	case *ac.MatchScore < 0 || *ac.MatchScore > 10:
		problems = append(problems, fmt.Sprintf("%s: %.1f (must be between 0 and 10)", invalidScoreMessage, *ac.MatchScore))
	}
	if len(problems) > 0 {
		return &ContextError{Kind: KindValidation, Problems: problems}
	}
	return nil
}

// isWebURL reports whether u is an absolute http or https URL.
func isWebURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
