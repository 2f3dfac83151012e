package domain

import "time"

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
}

// AccountSummary is the subset of an account returned to clients.
type AccountSummary struct {
	ID            string
	Username      string
	Email         string
	Role          Role
	EmailVerified bool
}

func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
	}
}

// LoginResult is the outcome of a login whose credentials checked out.
// When StepUpRequired is set no session exists and Tokens is empty.
type LoginResult struct {
	StepUpRequired bool
	SessionID      string
	Tokens         TokenPair
	Account        AccountSummary
}

// RefreshResult is the outcome of a successful refresh-token rotation.
type RefreshResult struct {
	SessionID string
	Tokens    TokenPair
}
