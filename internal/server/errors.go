package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/jobmatch/internal/crawl"
	"github.com/jonathan/jobmatch/internal/lifecycle"
	"github.com/jonathan/jobmatch/internal/operations"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the addressed resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		notFound   *ErrNotFound
		status     *lifecycle.InvalidStatusError
		crawlCfg   *crawl.ConfigError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &status), errors.As(err, &crawlCfg):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, operations.ErrUnknownOperation):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
