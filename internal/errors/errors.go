// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownIntent indicates an intent outside the closed set.
	ErrUnknownIntent = errors.New("unknown intent")

	// ErrInvalidPayload indicates a button payload that does not decode to {"intent": ...}.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrAIUnavailable indicates the AI backend produced no usable answer.
	ErrAIUnavailable = errors.New("ai backend unavailable")

	// ErrSendFailed indicates the messaging platform rejected or never received a reply.
	ErrSendFailed = errors.New("send failed")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
