package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a conditional write whose precondition no longer
	// held when it reached the row.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so that a Tx can hand out the same repositories bound to the
// transaction.
type Store interface {
	Accounts() Accounts
	Sessions() Sessions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns
	// nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
// Nested transactions are not supported.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// FailedLogin is the counter state left behind by RecordFailedLogin.
type FailedLogin struct {
	Attempts    int
	LockedUntil *time.Time

	// Counted is false when the account was already inside a lockout
	// window and the attempt was not added to the counter.
	Counted bool
}

type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByIdentifier matches either the username or the email
	// exactly. A username match wins if both would match.
	GetAccountByIdentifier(ctx context.Context, identifier string) (domain.Account, error)

	// CreateAccount inserts a (id is provided by the app via ULID). Returns
	// ErrAlreadyExists when the username or email is taken.
	CreateAccount(ctx context.Context, a domain.Account) error

	// RecordFailedLogin counts one failed attempt in a single atomic update.
	// A counter whose lockout window has lapsed restarts at 1. When the new
	// count reaches threshold the window is set to lockUntil. Attempts made
	// while the window is open are not counted.
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (FailedLogin, error)

	// RecordSuccessfulLogin zeroes the counter, clears the lockout window and
	// stamps the last login. It only applies to an ACTIVE account outside a
	// lockout window and returns ErrConflict otherwise.
	RecordSuccessfulLogin(ctx context.Context, id, ip string, now time.Time) error

	// ClearFailedLogins zeroes the counter and window unconditionally.
	ClearFailedLogins(ctx context.Context, id string, now time.Time) error

	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
	UpdateAccountState(ctx context.Context, id string, state domain.AccountState, now time.Time) error
	SetTwoFactor(ctx context.Context, id string, enabled bool, now time.Time) error
	SetEmailVerified(ctx context.Context, id string, verified bool, now time.Time) error

	// IsEmpty returns true if there are no accounts.
	IsEmpty(ctx context.Context) (bool, error)
}

// RotateSession describes a refresh-token rotation.
type RotateSession struct {
	SessionID      string
	OldRefreshHash string

	NewAccessHash  string
	NewRefreshHash string
	ExpiresAt      time.Time
	Now            time.Time
}

type Sessions interface {
	// CreateSession inserts s. A token fingerprint collision returns
	// ErrAlreadyExists.
	CreateSession(ctx context.Context, s domain.Session) error

	GetSessionByID(ctx context.Context, id string) (domain.Session, error)
	GetSessionByAccessTokenHash(ctx context.Context, hash string) (domain.Session, error)
	GetSessionByRefreshTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// ListSessionsByAccount returns every session row of the account, newest first.
	ListSessionsByAccount(ctx context.Context, accountID string) ([]domain.Session, error)

	// RotateSessionTokens swaps the token pair of a live session, provided
	// its refresh fingerprint still equals OldRefreshHash. Any other outcome
	// (already rotated, logged out, expired) returns ErrNotFound.
	RotateSessionTokens(ctx context.Context, p RotateSession) error

	// InvalidateSession marks the session inactive. Invalidating an inactive
	// session succeeds and keeps its original logout time. ErrNotFound when
	// no such row exists.
	InvalidateSession(ctx context.Context, id string, now time.Time) error

	// InvalidateAccountSessions invalidates every active session of the
	// account and returns how many it changed.
	InvalidateAccountSessions(ctx context.Context, accountID string, now time.Time) (int64, error)

	// InvalidateAccountSessionsExcept is InvalidateAccountSessions sparing keepID.
	InvalidateAccountSessionsExcept(ctx context.Context, accountID, keepID string, now time.Time) (int64, error)

	// TouchSession bumps last_accessed_at.
	TouchSession(ctx context.Context, id string, now time.Time) error

	// DeleteStaleSessions removes rows that expired, or were logged out,
	// before cutoff. It is optional housekeeping.
	DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)
}
