// Package types provides the request and response bodies of the HTTP API.
package types

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// CrawlRequest starts a crawl. Zero MaxPages and PageTimeoutSeconds fall back
// to the server defaults.
type CrawlRequest struct {
	SearchTerm         string `json:"search_term" validate:"required,max=200"`
	CVKey              string `json:"cv_key" validate:"required,len=16,hexadecimal"`
	SourceURL          string `json:"source_url" validate:"required,http_url"`
	MaxPages           int    `json:"max_pages,omitempty" validate:"gte=0,lte=100"`
	PageTimeoutSeconds int    `json:"page_timeout_seconds,omitempty" validate:"gte=0,lte=600"`
}

// Validate validates the CrawlRequest using the validator.
func (r *CrawlRequest) Validate() error {
	return structValidator().Struct(r)
}

// MatchIDsRequest names the job matches a batch operation works on.
type MatchIDsRequest struct {
	JobMatchIDs    []string `json:"job_match_ids" validate:"required,min=1,max=500,dive,uuid"`
	SkipDuplicates *bool    `json:"skip_duplicates,omitempty"`
}

// Validate validates the MatchIDsRequest using the validator.
func (r *MatchIDsRequest) Validate() error {
	return structValidator().Struct(r)
}

// SkipDuplicatesOrDefault returns SkipDuplicates, true when unset.
func (r *MatchIDsRequest) SkipDuplicatesOrDefault() bool {
	if r.SkipDuplicates == nil {
		return true
	}
	return *r.SkipDuplicates
}

// StatusRequest moves a match to a new application status.
type StatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// Validate validates the StatusRequest using the validator.
func (r *StatusRequest) Validate() error {
	return structValidator().Struct(r)
}

// NoteRequest appends a note to an application.
type NoteRequest struct {
	Note string `json:"note" validate:"required,max=4000"`
}

// Validate validates the NoteRequest using the validator.
func (r *NoteRequest) Validate() error {
	return structValidator().Struct(r)
}

// EmailCheckRequest asks for deliverability assessments of recipient addresses.
type EmailCheckRequest struct {
	Emails []string `json:"emails" validate:"required,min=1,max=1000"`
}

// Validate validates the EmailCheckRequest using the validator.
func (r *EmailCheckRequest) Validate() error {
	return structValidator().Struct(r)
}

// OperationAccepted is returned when a background operation was started.
type OperationAccepted struct {
	OperationID string `json:"operation_id"`
	Kind        string `json:"kind"`
	StatusURL   string `json:"status_url"`
	StreamURL   string `json:"stream_url"`
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}
