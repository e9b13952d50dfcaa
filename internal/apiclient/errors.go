package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"shopauth/pkg/oauth"
)

// APIError is returned for any response with a non-2xx status.
type APIError struct {
	Status     int
	StatusText string
	// Message is the "message" or "error" field of a JSON error body.
	Message string
	// Challenge is the parsed WWW-Authenticate header of a 401.
	Challenge *oauth.AuthChallenge
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %d %s: %s", e.Status, e.StatusText, e.Message)
	}
	return fmt.Sprintf("API error: %d %s", e.Status, e.StatusText)
}

// IsClientError reports whether the status is a 4xx.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

func newAPIError(resp *http.Response, data interface{}) *APIError {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Challenge:  oauth.ParseWWWAuthenticateFromResponse(resp),
	}
	if body, ok := data.(map[string]interface{}); ok {
		if msg, ok := body["message"].(string); ok {
			apiErr.Message = msg
		} else if msg, ok := body["error"].(string); ok {
			apiErr.Message = msg
		}
	}
	return apiErr
}

// UserMessage returns the text shown to the user for a failed request.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "The request timed out. Please try again."
		}
		if errors.Is(err, context.Canceled) {
			return "The request was cancelled."
		}
		return "Network error. Please check your connection and try again."
	}

	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return "Authentication required. Please sign in again."
	case apiErr.Status == http.StatusForbidden:
		return "You do not have permission to perform this action."
	case apiErr.Status == http.StatusNotFound:
		return "The requested resource was not found."
	case apiErr.Status >= 500:
		return "Server error. Please try again later."
	case apiErr.Message != "":
		return apiErr.Message
	default:
		return "An unexpected error occurred."
	}
}
