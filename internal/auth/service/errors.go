package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
)

// Failures surfaced by authentication operations. Callers match them with
// errors.Is; the typed variants below carry detail where the caller may show it.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAccountUnavailable = errors.New("account_unavailable")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInternal           = errors.New("internal_error")

	// ErrSessionNotFound only leaves the service where the caller named a
	// session explicitly. It matches ErrInvalidToken.
	ErrSessionNotFound = fmt.Errorf("%w: session not found", ErrInvalidToken)

	ErrInvalidInput  = errors.New("invalid_input")
	ErrAccountExists = errors.New("account_exists")
	ErrNoSuchAccount = errors.New("account_not_found")
)

// AccountLockedError reports an account inside a lockout window, or one
// locked administratively. RetryAfter is zero when no end is known.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("account_locked: retry after %s", e.RetryAfter.Round(time.Second))
	}
	return "account_locked"
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// AccountUnavailableError reports an account whose state forbids login.
type AccountUnavailableError struct {
	State domain.AccountState
}

func (e *AccountUnavailableError) Error() string {
	return "account_unavailable: " + string(e.State)
}

func (e *AccountUnavailableError) Is(target error) bool { return target == ErrAccountUnavailable }

// InternalError hides a storage or codec failure. The cause is kept for
// logging but deliberately not exposed through Unwrap.
type InternalError struct {
	Op    string
	cause error
}

func (e *InternalError) Error() string        { return "internal_error: " + e.Op }
func (e *InternalError) Is(target error) bool { return target == ErrInternal }
func (e *InternalError) Cause() error         { return e.cause }

func internalErr(op string, err error) error {
	return &InternalError{Op: op, cause: err}
}

// lockedError converts a lock expiry into an AccountLockedError.
func lockedError(until *time.Time, now time.Time) error {
	if until == nil || !now.Before(*until) {
		return &AccountLockedError{}
	}
	return &AccountLockedError{RetryAfter: until.Sub(now)}
}
