// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/dukex/wardflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidKind    = errors.New("invalid kind")
	ErrInvalidStatus  = errors.New("invalid workflow item status")
	ErrInvalidDomain  = errors.New("invalid domain")
)

// ErrorKind names an error class in API responses.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindExpired             ErrorKind = "expired"
	KindMissingSelection    ErrorKind = "missing_selection"
	KindUnmatchedRequest    ErrorKind = "unmatched_request"
	KindDuplicateActive     ErrorKind = "duplicate_active"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindTransientIO         ErrorKind = "transient_io_error"
	KindInternal            ErrorKind = "internal_error"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidDomain) ||
		errors.Is(err, workflow.ErrInvalidItem) ||
		errors.Is(err, workflow.ErrMissingActor) ||
		registry.IsInvalidUnit(err)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return persistence.IsItemNotFound(err) || persistence.IsUnitNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return workflow.IsInvalidTransition(err) ||
		errors.Is(err, workflow.ErrUnmatchedRequest) ||
		errors.Is(err, workflow.ErrDuplicateActive) ||
		IsRetryableConflict(err)
}

// IsRetryableConflict checks if the request lost a race and may be retried as is.
func IsRetryableConflict(err error) bool {
	return workflow.IsConcurrencyConflict(err)
}

// IsUnprocessable checks if a well-formed request lacks what the item needs (HTTP 422).
func IsUnprocessable(err error) bool {
	return workflow.IsMissingSelection(err)
}

// Kind classifies err for API responses.
func Kind(err error) ErrorKind {
	switch {
	case IsValidationError(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsUnprocessable(err):
		return KindMissingSelection
	case workflow.IsExpired(err):
		return KindExpired
	case workflow.IsInvalidTransition(err):
		return KindInvalidTransition
	case errors.Is(err, workflow.ErrUnmatchedRequest):
		return KindUnmatchedRequest
	case errors.Is(err, workflow.ErrDuplicateActive):
		return KindDuplicateActive
	case IsRetryableConflict(err):
		return KindConcurrencyConflict
	case persistence.IsTransient(err):
		return KindTransientIO
	default:
		return KindInternal
	}
}
