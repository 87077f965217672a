package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to API clients.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeNoEligibleStaff = "NO_ELIGIBLE_STAFF"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeInvalidPayload  = "INVALID_PAYLOAD"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewNotFound reports a missing request, procedure, area or user.
func NewNotFound(resource string) error {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, nil)
}

// NewNoEligibleStaff reports an empty active roster for the target area.
func NewNoEligibleStaff() error {
	return NewDomainError(CodeNoEligibleStaff, "no active staff available in the target area", http.StatusConflict, nil)
}

// NewUnauthorized reports that the actor lacks standing for the operation.
func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusForbidden, nil)
}

// NewUnauthenticated reports a missing or invalid credential.
func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewInvalidPayload(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidPayload, message, http.StatusBadRequest, details)
}

func NewConflict(message string) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewDomainError(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError wraps unknown errors as internal errors and passes domain errors through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
