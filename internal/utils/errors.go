package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskmaster/backend"
	"taskmaster/internal/ratelimit"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ValidationError reports a missing or malformed field before anything is
// sent to the backend.
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

// ErrRequired returns a validation error for a missing required field.
func ErrRequired(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// ErrNotLoggedIn is returned when a command needs a session token.
func ErrNotLoggedIn() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not logged in"),
		Suggestion: "Run 'taskmaster login' or set TASKMASTER_TOKEN",
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the search term or use 'taskmaster list' to see all tasks",
	}
}

// ErrBackendOffline returns an error when the backend is unreachable with smart suggestions.
func ErrBackendOffline(reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", backend.ErrNetwork, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check that api.base_url points at a running server"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "deadline exceeded") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidPriority returns an error for an invalid priority value.
func ErrInvalidPriority(priority string) error {
	return &ErrorWithSuggestion{
		Err:        &ValidationError{Field: "priority", Message: fmt.Sprintf("invalid value %q", priority)},
		Suggestion: "Priority must be one of: low, medium, high",
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        &ValidationError{Field: "date", Message: fmt.Sprintf("invalid value %q", dateStr)},
		Suggestion: "Use YYYY-MM-DD (e.g., 2026-01-15), today, tomorrow or +Nd/+Nw/+Nm",
	}
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        &ValidationError{Field: "status", Message: fmt.Sprintf("invalid value %q", status)},
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrAuthenticationFailed returns an error when the token is rejected.
func ErrAuthenticationFailed(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Your session may have expired. Run 'taskmaster login' again",
	}
}

// ErrorKind is the user-facing error category.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindBackend    ErrorKind = "backend"
	KindAuth       ErrorKind = "auth"
	KindNetwork    ErrorKind = "network"
	KindRateLimit  ErrorKind = "rate_limit"
	KindDuplicate  ErrorKind = "duplicate"
	KindCancelled  ErrorKind = "cancelled"
	KindUnknown    ErrorKind = "unknown"
)

// duplicateWarning is implemented by the dashboard's duplicate-title error.
type duplicateWarning interface {
	DuplicateWarning() bool
}

// Classify maps an error to its category.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var dup duplicateWarning
	if errors.As(err, &dup) && dup.DuplicateWarning() {
		return KindDuplicate
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	var rl *ratelimit.RateLimitError
	if errors.As(err, &rl) {
		return KindRateLimit
	}

	if errors.Is(err, backend.ErrUnauthorized) {
		return KindAuth
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return KindBackend
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	if errors.Is(err, backend.ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	return KindUnknown
}

// UserMessage renders an error the way the interface shows it inline.
// Transport failures collapse to a generic connectivity message.
func UserMessage(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindNetwork:
		return "Unable to reach the server. Check your connection and try again."
	case KindAuth:
		return "Session expired or invalid. Please log in again."
	case KindCancelled:
		return "Cancelled."
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	// Suggestions are shown separately
	if sugg, ok := err.(*ErrorWithSuggestion); ok {
		return sugg.Err.Error()
	}
	return err.Error()
}
