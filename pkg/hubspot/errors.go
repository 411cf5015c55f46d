package hubspot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNoAccessToken is returned when the client has no token.
	ErrNoAccessToken = errors.New("hubspot: access token required")

	// ErrNoBaseURL is returned when the base URL is empty.
	ErrNoBaseURL = errors.New("hubspot: base URL required")

	// ErrMissingEmail is returned for a contact without an email address.
	ErrMissingEmail = errors.New("hubspot: email required")

	// ErrInvalidEmail is returned for an email without an @.
	ErrInvalidEmail = errors.New("hubspot: invalid email")
)

// APIError is a non-2xx response from the CRM API.
type APIError struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("hubspot: API error %d (%s): %s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("hubspot: API error %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the contact already exists.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsUnauthorized reports an invalid or revoked token.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetryable reports whether the request may succeed on retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsBadRequest reports a validation failure on the submitted properties.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Category string `json:"category"`
		Message  string `json:"message"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		apiErr.Message = errResp.Message
		apiErr.Category = errResp.Category
	}
	return apiErr
}
