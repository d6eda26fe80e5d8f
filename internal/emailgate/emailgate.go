// Package emailgate flags recipient addresses that are likely to land in a
// shared inbox or spam filter.
package emailgate

import (
	"strings"
)

// Severity of an assessment.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Confidence values reported by Assess.
const (
	ConfidenceGeneric  = 0.9
	ConfidencePersonal = 0.8
	ConfidenceUnclear  = 0.5
	ConfidenceInvalid  = 1.0
)

// genericTokens are local-part words used by departmental inboxes.
var genericTokens = []string{
	"jobs", "job", "hr", "careers", "career", "recruiting", "recruitment",
	"bewerbung", "bewerbungen", "application", "applications",
	"info", "contact", "office", "admin",
}

const nameSeparators = "._-"

// Assessment is the verdict for one address.
type Assessment struct {
	Email          string   `json:"email"`
	IsGeneric      bool     `json:"is_generic"`
	Confidence     float64  `json:"confidence"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
	PatternMatched string   `json:"pattern_matched,omitempty"`
}

// Assess classifies an email address. Generic tokens are checked before the
// personal-name heuristic.
func Assess(email string) Assessment {
	email = strings.TrimSpace(email)
	a := Assessment{Email: email}

	if email == "" {
		a.Severity = SeverityError
		a.Confidence = ConfidenceInvalid
		a.Recommendation = "No recipient email; find a contact address manually."
		return a
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") || !validDomain(domain) {
		a.Severity = SeverityError
		a.Confidence = ConfidenceInvalid
		a.Recommendation = "Address is malformed; correct it before sending."
		return a
	}

	lowerLocal := strings.ToLower(local)
	if token, found := matchGenericToken(lowerLocal); found {
		a.IsGeneric = true
		a.Severity = SeverityWarning
		a.Confidence = ConfidenceGeneric
		a.PatternMatched = token + "@"
		a.Recommendation = "Generic inbox; look up a named contact to improve deliverability."
		return a
	}

	if strings.ContainsAny(lowerLocal, nameSeparators) {
		a.Severity = SeverityOK
		a.Confidence = ConfidencePersonal
		a.Recommendation = "Looks like a personal address."
		return a
	}

	a.Severity = SeverityWarning
	a.Confidence = ConfidenceUnclear
	a.Recommendation = "Unclear whether this is a personal address; review before sending."
	return a
}

func validDomain(domain string) bool {
	if !strings.Contains(domain, ".") {
		return false
	}
	return !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// matchGenericToken reports the generic token found in a lowercased local part,
// either as the whole local part or as one separator-delimited segment.
func matchGenericToken(local string) (string, bool) {
	segments := strings.FieldsFunc(local, func(r rune) bool {
		return strings.ContainsRune(nameSeparators+"+", r)
	})
	for _, token := range genericTokens {
		if local == token {
			return token, true
		}
		for _, seg := range segments {
			if seg == token {
				return token, true
			}
		}
	}
	return "", false
}

// BatchAssessment aggregates a set of assessments for pre-send review.
type BatchAssessment struct {
	Total    int          `json:"total"`
	Generic  int          `json:"generic"`
	Personal int          `json:"personal"`
	Unclear  int          `json:"unclear"`
	Invalid  int          `json:"invalid"`
	Results  []Assessment `json:"results"`
}

// AssessBatch assesses every address and tallies the categories.
func AssessBatch(emails []string) BatchAssessment {
	b := BatchAssessment{Total: len(emails), Results: make([]Assessment, 0, len(emails))}
	for _, e := range emails {
		a := Assess(e)
		switch {
		case a.Severity == SeverityError:
			b.Invalid++
		case a.IsGeneric:
			b.Generic++
		case a.Severity == SeverityOK:
			b.Personal++
		default:
			b.Unclear++
		}
		b.Results = append(b.Results, a)
	}
	return b
}
