// Package lifecycle tracks where each job match stands in the application
// pipeline. Transitions are operator-driven and unrestricted.
package lifecycle

import (
	"fmt"
	"strings"
)

// Status is one of the eight pipeline states.
type Status string

const (
	StatusMatched    Status = "MATCHED"
	StatusInterested Status = "INTERESTED"
	StatusPreparing  Status = "PREPARING"
	StatusApplied    Status = "APPLIED"
	StatusInterview  Status = "INTERVIEW"
	StatusOffer      Status = "OFFER"
	StatusRejected   Status = "REJECTED"
	StatusArchived   Status = "ARCHIVED"
)

// Aggregate keys in PipelineStats output.
const (
	TotalActive = "TOTAL_ACTIVE"
	TotalClosed = "TOTAL_CLOSED"
	TotalAll    = "TOTAL_ALL"
)

// AllStatuses lists the statuses in pipeline order.
var AllStatuses = []Status{
	StatusMatched, StatusInterested, StatusPreparing, StatusApplied,
	StatusInterview, StatusOffer, StatusRejected, StatusArchived,
}

// Valid reports whether s is one of the eight statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether s counts towards TOTAL_ACTIVE.
func (s Status) Active() bool {
	switch s {
	case StatusMatched, StatusInterested, StatusPreparing, StatusApplied, StatusInterview:
		return true
	}
	return false
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &InvalidStatusError{Value: s}
	}
	return st, nil
}

// InvalidStatusError is returned for a status outside the fixed set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid application status %q", e.Value)
}
