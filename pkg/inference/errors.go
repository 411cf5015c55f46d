package inference

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrNoBaseURL is returned when the base URL is empty.
	ErrNoBaseURL = errors.New("inference: base URL required")

	// ErrNoModel is returned when model is required but missing.
	ErrNoModel = errors.New("inference: model required")

	// ErrProviderUnavailable is returned when no provider is configured.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrNoMessages is returned for a chat request without messages.
	ErrNoMessages = errors.New("inference: messages required")

	// ErrInvalidRole is returned for a message role the API does not accept.
	ErrInvalidRole = errors.New("inference: invalid message role")

	// ErrInvalidTemperature is returned for temperatures outside 0-2.
	ErrInvalidTemperature = errors.New("inference: temperature must be between 0 and 2")

	// ErrNoAudio is returned for a transcription request without audio.
	ErrNoAudio = errors.New("inference: audio required")

	// ErrEmptyResponse is returned when the API answers without choices.
	ErrEmptyResponse = errors.New("inference: no choices returned")
)

// APIError represents an error response from an inference API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// IsInvalidRequest reports whether err was caused by the caller's input
// rather than the provider.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrNoMessages) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidTemperature) ||
		errors.Is(err, ErrNoAudio)
}
