package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error codes returned by the service.
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeAccountLocked          = "account_locked"
	ErrorCodeAccountUnavailable     = "account_unavailable"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeInsufficientScope      = "insufficient_scope"
	ErrorCodeEmailNotVerified       = "email_not_verified"
	ErrorCodeStepUpRequired         = "step_up_required"
	ErrorCodeNotFound               = "not_found"
	ErrorCodeConflict               = "conflict"
	ErrorCodeRateLimitExceeded      = "rate_limit_exceeded"
	ErrorCodeTemporarilyUnavailable = "temporarily_unavailable"
	ErrorCodeServerError            = "server_error"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Code is the error code (e.g., "invalid_credentials")
	Code string

	// Description is a human-readable description of the error
	Description string

	// RetryAfter is set on account_locked and rate_limit_exceeded when known
	RetryAfter time.Duration

	// AccountID is set on step_up_required
	AccountID string

	// Details carries per-field validation messages
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsStepUpRequired reports a login whose credentials were right but which
// needs a second factor before a session is issued.
func IsStepUpRequired(err error) bool { return IsCode(err, ErrorCodeStepUpRequired) }

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		ErrorResponse
		Details map[string]string `json:"details,omitempty"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Description = errResp.ErrorDescription
		apiErr.AccountID = errResp.AccountID
		apiErr.Details = errResp.Details
		apiErr.RetryAfter = time.Duration(errResp.RetryAfter) * time.Second
	} else {
		// Fallback: create generic error from status code
		apiErr.Code = ErrorCodeServerError
		apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if apiErr.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
