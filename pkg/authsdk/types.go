package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the uniform error body returned by every endpoint.
type ErrorResponse struct {
	// Error is the machine readable code (e.g., "invalid_credentials")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description,omitempty"`

	// RetryAfter is set on account_locked when the lockout end is known, in seconds
	RetryAfter int `json:"retry_after,omitempty"`

	// AccountID is set on step_up_required
	AccountID string `json:"account_id,omitempty"`
}

// ValidationErrorResponse is returned when request validation fails on
// individual fields.
type ValidationErrorResponse struct {
	// Error is always "invalid_request"
	Error string `json:"error"`

	// ErrorDescription is a human-readable error message
	ErrorDescription string `json:"error_description"`

	// Details contains field-specific validation errors (field name: error message)
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Authentication Types
// ============================================================================

// Session classes accepted by LoginRequest.SessionClass.
const (
	SessionClassWeb    = "WEB"
	SessionClassMobile = "MOBILE"
	SessionClassAPI    = "API"
	SessionClassAdmin  = "ADMIN"
)

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	// Identifier is the username or email address
	Identifier string `json:"identifier"`
	Password   string `json:"password"`

	// Device is a free form label for the client device (optional)
	Device string `json:"device,omitempty"`

	// SessionClass is one of WEB, MOBILE, API or ADMIN (default WEB)
	SessionClass string `json:"session_class,omitempty"`
}

// AccountSummary is the account block of a login response.
type AccountSummary struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	// AccessToken is the JWT presented as a Bearer token on every request
	AccessToken string `json:"access_token"`

	// RefreshToken is exchanged at /v1/auth/refresh; it is single use
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token
	RefreshExpiresIn int `json:"refresh_expires_in"`

	SessionID string `json:"session_id"`

	// Account is only present on login
	Account *AccountSummary `json:"account,omitempty"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutAllResponse reports how many sessions a bulk logout ended.
type LogoutAllResponse struct {
	Invalidated int64 `json:"invalidated"`
}

// ValidateResponse describes the principal behind a valid access token.
type ValidateResponse struct {
	AccountID     string    `json:"account_id"`
	SessionID     string    `json:"session_id"`
	Role          string    `json:"role"`
	SessionClass  string    `json:"session_class"`
	Permissions   []string  `json:"permissions"`
	EmailVerified bool      `json:"email_verified"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ============================================================================
// Session Types
// ============================================================================

// SessionInfo describes one login session of the caller.
type SessionInfo struct {
	ID             string     `json:"id"`
	SessionClass   string     `json:"session_class"`
	Device         string     `json:"device,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LoggedOutAt    *time.Time `json:"logged_out_at,omitempty"`

	// Current marks the session the request was made with
	Current bool `json:"current"`

	// Valid reports whether the session can still be refreshed
	Valid bool `json:"valid"`
}

// ListSessionsResponse contains the caller's sessions, newest first.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ============================================================================
// Account Types
// ============================================================================

// CreateAccountRequest is the body of POST /v1/accounts.
type CreateAccountRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role,omitempty"` // USER (default) or ADMIN
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// AccountResponse describes an account.
type AccountResponse struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	State            string     `json:"state"`
	EmailVerified    bool       `json:"email_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	FailedAttempts   int        `json:"failed_attempts"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SetAccountStateRequest is the body of PUT /v1/accounts/{id}/state.
type SetAccountStateRequest struct {
	// State is one of ACTIVE, INACTIVE, SUSPENDED, LOCKED, PENDING_VERIFICATION or DELETED
	State string `json:"state"`
}

// SetEmailVerifiedRequest is the body of PUT /v1/accounts/{id}/email-verified.
type SetEmailVerifiedRequest struct {
	Verified bool `json:"verified"`
}

// SetTwoFactorRequest is the body of PUT /v1/accounts/{id}/two-factor.
type SetTwoFactorRequest struct {
	Enabled bool `json:"enabled"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest contains the data needed to create the first admin account.
type BootstrapRequest struct {
	// AdminUsername is the username for the initial admin (3-32 chars)
	AdminUsername string `json:"admin_username"`

	// AdminEmail is the admin's email address; it is marked verified
	AdminEmail string `json:"admin_email"`

	// AdminPassword is the password for the admin (8-128 chars)
	AdminPassword string `json:"admin_password"`
}

// BootstrapResponse contains the ID of the created admin account.
type BootstrapResponse struct {
	AdminAccountID string `json:"admin_account_id"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
type HealthResponse struct {
	// Status is "ok" or "degraded"
	Status string `json:"status"`

	// Uptime is the time since the service started
	Uptime string `json:"uptime"`

	// Version is the build version
	Version string `json:"version"`

	// Checks is only present on /readyz
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
