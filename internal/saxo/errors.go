package saxo

import (
	"fmt"
	"net/http"
)

// APIError represents a non-2xx response from the venue API
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue API error: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// AuthenticationError represents a rejected or expired access token
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// NewAPIError creates a new venue API error
func NewAPIError(statusCode int, endpoint, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, cause error) *AuthenticationError {
	return &AuthenticationError{
		Message: message,
		Cause:   cause,
	}
}

// mapStatusError maps HTTP status codes to typed errors
func mapStatusError(statusCode int, endpoint, body string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewAuthenticationError("access token rejected by the venue", nil)
	default:
		return NewAPIError(statusCode, endpoint, body)
	}
}
