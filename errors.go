package sestemplates

import (
	"errors"
	"fmt"
	"time"

	"github.com/lattiq/sestemplates/internal/core"
)

// Predefined sentinel errors for common cases.
var (
	// ErrRateLimited indicates the request was rejected by a rate limit window.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrLimiterUnavailable indicates the rate limit store could not be reached.
	ErrLimiterUnavailable = errors.New("rate limit store unavailable")
)

// Rate limit window names.
const (
	WindowGeneral = "general"
	WindowSend    = "send"
)

// RateLimitError represents a request rejected by one of the fixed windows.
type RateLimitError struct {
	// Window names the limiter that rejected the request ("general" or "send").
	Window string

	// Message is the user-facing rejection message.
	Message string

	// Limit is the number of requests admitted per window.
	Limit int

	// Period is the window length.
	Period time.Duration

	// RetryAfter is the time remaining until the caller's window resets.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s window: %s (retry after %v)", e.Window, e.Message, e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimited) match any window.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(window, message string, limit int, period, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Window:     window,
		Message:    message,
		Limit:      limit,
		Period:     period,
		RetryAfter: retryAfter,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return core.NewValidationError(field, message)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	return core.IsValidationError(err)
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	return core.IsProviderError(err)
}

// ErrorMessage returns the user-visible message for err.
// Provider errors yield the provider's own message, validation errors the
// field message, and rate limit errors the window message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Message
	}

	return err.Error()
}
