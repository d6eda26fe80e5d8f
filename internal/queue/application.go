// Package queue stores outbound applications as one record per application,
// grouped into pending, sent and failed containers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/schemas"
)

// Status names a queue container.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Statuses lists every container.
var Statuses = []Status{StatusPending, StatusSent, StatusFailed}

// Valid reports whether s names a container.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusFailed
}

// IDPrefix starts every application id.
const IDPrefix = "app_"

var (
	// ErrExists is returned by Put when a record with the same id exists.
	ErrExists = errors.New("queue record already exists")
	// ErrNotFound is returned when a record is missing from a container.
	ErrNotFound = errors.New("queue record not found")
)

// Application is a fully aggregated, ready-to-send record.
type Application struct {
	ID                  string     `json:"id" validate:"required,startswith=app_"`
	JobTitle            string     `json:"job_title" validate:"required"`
	CompanyName         string     `json:"company_name" validate:"required"`
	RecipientEmail      string     `json:"recipient_email,omitempty" validate:"omitempty,email"`
	RecipientName       string     `json:"recipient_name" validate:"required"`
	SubjectLine         string     `json:"subject_line" validate:"required"`
	MotivationLetter    string     `json:"motivation_letter" validate:"required"`
	ApplicationURL      string     `json:"application_url,omitempty" validate:"omitempty,url"`
	MatchScore          float64    `json:"match_score" validate:"gte=0,lte=10"`
	CreatedAt           time.Time  `json:"created_at" validate:"required"`
	Status              Status     `json:"status" validate:"required,oneof=pending sent failed"`
	RequiresManualEmail bool       `json:"requires_manual_email"`
	JobMatchID          string     `json:"job_match_id,omitempty"`
	EmailWarning        string     `json:"email_warning,omitempty"`
	StatusMessage       string     `json:"status_message,omitempty"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

// NewID returns a fresh application id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// SubmissionError lists every rule an application breaks.
type SubmissionError struct {
	Problems []string
}

func (e *SubmissionError) Error() string {
	return "invalid queue application: " + strings.Join(e.Problems, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate runs the submission checks: required fields, id prefix, status,
// email form and application URL scheme.
func Validate(app *Application) error {
	var problems []string

	if err := structValidator().Struct(app); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate application: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}

	if app.ApplicationURL != "" {
		if u, err := url.Parse(app.ApplicationURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			problems = append(problems, fmt.Sprintf("ApplicationURL has unsupported scheme: %q", app.ApplicationURL))
		}
	}
	if app.RequiresManualEmail != (strings.TrimSpace(app.RecipientEmail) == "") {
		problems = append(problems, "RequiresManualEmail must be set exactly when no recipient email is known")
	}

	if len(problems) > 0 {
		return &SubmissionError{Problems: problems}
	}
	return nil
}

// Encode serializes an application and checks it against the record schema.
func Encode(app *Application) ([]byte, error) {
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal application: %w", err)
	}
	if err := schemas.ValidateQueueApplication(data); err != nil {
		return nil, fmt.Errorf("application %s does not match record schema: %w", app.ID, err)
	}
	return data, nil
}

// Decode parses a stored record.
func Decode(data []byte) (*Application, error) {
	var app Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}
	return &app, nil
}

// Store is the put/move/list surface over a queue backend.
type Store interface {
	// Put writes a new record into the container named by app.Status.
	Put(ctx context.Context, app *Application) error
	// Move relocates a record between containers, updating its status and
	// message. The destination is written before the source is removed.
	Move(ctx context.Context, id string, from, to Status, message string) error
	// List returns the records of one container, oldest first.
	List(ctx context.Context, status Status) ([]Application, error)
	// Get returns one record.
	Get(ctx context.Context, status Status, id string) (*Application, error)
}

func fileName(id string) string {
	return id + ".json"
}

func checkID(id string) error {
	if !strings.HasPrefix(id, IDPrefix) || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid application id %q", id)
	}
	return nil
}
