package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrEmptyAnswer is returned when a provider replies with no text.
var ErrEmptyAnswer = errors.New("empty answer")

// ErrorAction defines the action to take based on error type.
type ErrorAction int

const (
	// ActionRetry indicates the request should be retried with the same provider.
	ActionRetry ErrorAction = iota
	// ActionFallback indicates the next provider should be tried.
	ActionFallback
	// ActionFail indicates a permanent error for this provider.
	ActionFail
)

// String returns a human-readable string for the error action.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError wraps an error with provider and HTTP status.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return string(e.Provider) + ": " + e.Err.Error() + " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return string(e.Provider) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapError attaches the provider and the HTTP status carried by SDK errors.
func WrapError(err error, provider Provider) error {
	if err == nil {
		return nil
	}
	return &LLMError{Err: err, StatusCode: statusCode(err), Provider: provider}
}

// statusCode extracts the HTTP status from openai-go and genai SDK errors.
func statusCode(err error) int {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// ClassifyError determines the action for a failed call:
//   - transient errors (429, 5xx, network, timeouts) → retry
//   - quota exhaustion and empty answers → next provider
//   - permanent errors (400, 401, 403, 404) → fail this provider
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}

	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	if errors.Is(err, ErrEmptyAnswer) {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}
	if code := statusCode(err); code > 0 {
		return classifyStatusCode(code)
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, "quota", "daily limit", "monthly limit", "billing", "payment required") {
		return ActionFallback
	}
	if containsAny(errStr, "rate limit", "too many requests", "resource_exhausted", "429") {
		return ActionRetry
	}
	if containsAny(errStr, "unavailable", "internal server error", "bad gateway",
		"gateway timeout", "overloaded", "capacity", "500", "502", "503", "504") {
		return ActionRetry
	}
	if containsAny(errStr, "timeout", "deadline", "connection", "eof") {
		return ActionRetry
	}
	if containsAny(errStr, "401", "unauthorized", "unauthenticated", "invalid api key",
		"403", "forbidden", "permission denied",
		"400", "bad request", "malformed", "invalid",
		"404", "not found", "422", "unprocessable") {
		return ActionFail
	}

	// Unknown errors get one more chance.
	return ActionRetry
}

func classifyStatusCode(code int) ErrorAction {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code >= 500 && code < 600:
		return ActionRetry
	case code == http.StatusPaymentRequired:
		return ActionFallback
	case code >= 400 && code < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// errorLabel maps an error to a metric status label.
func errorLabel(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, ErrEmptyAnswer) {
		return "empty"
	}

	code := statusCode(err)
	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		code = llmErr.StatusCode
	}
	switch {
	case code == http.StatusTooManyRequests:
		return "rate_limit"
	case code >= 500:
		return "server_error"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth_error"
	case code == http.StatusBadRequest:
		return "invalid_request"
	}

	switch ClassifyError(err) {
	case ActionFallback:
		return "quota_exhausted"
	case ActionRetry:
		return "transient_error"
	default:
		return "error"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
