package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing ids and ids owned by another user.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrExecutionRunning is returned when a scout already has a running
	// execution inside the advisory window.
	ErrExecutionRunning = errors.New("execution already running")
	// ErrRateLimited is returned when a user exceeds an upload quota.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAlreadyResponded is returned when a correspondent answers a draft
	// twice.
	ErrAlreadyResponded = errors.New("correspondent already responded")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
