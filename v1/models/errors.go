package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for missing records
var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvitationNotFound = errors.New("invitation not found")
)

// ValidationError reports a missing or invalid required field. The payload
// snapshot is carried so the caller can see exactly what was rejected.
type ValidationError struct {
	Field   string
	Payload interface{}
}

func (e *ValidationError) Error() string {
	snapshot, err := json.Marshal(e.Payload)
	if err != nil {
		snapshot = []byte(fmt.Sprintf("%+v", e.Payload))
	}
	return fmt.Sprintf("missing or invalid required field %q in payload %s", e.Field, snapshot)
}

// NewValidationError creates a validation error for the named field
func NewValidationError(field string, payload interface{}) *ValidationError {
	return &ValidationError{Field: field, Payload: payload}
}

// RejectionError is a business-rule rejection surfaced to the caller with a
// human-readable reason. It is not logged as a failure.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// Reject creates a business-rule rejection
func Reject(format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// UnauthorizedError reports an unauthenticated or unauthorized invitation code
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return e.Reason
}

// Unauthorized creates an unauthorized error
func Unauthorized(format string, args ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{Reason: fmt.Sprintf(format, args...)}
}

// StatusForError maps the error taxonomy onto dispatch status codes:
// validation and business-rule problems are 400, bad invitation codes are
// 401, everything else is an unexpected failure.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	var re *RejectionError
	var ue *UnauthorizedError
	switch {
	case errors.As(err, &ue):
		return http.StatusUnauthorized
	case errors.As(err, &ve), errors.As(err, &re),
		errors.Is(err, ErrEntityNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvitationNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
