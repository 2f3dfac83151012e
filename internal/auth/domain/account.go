package domain

import "time"

// AccountState is the administrative state of an account. It is independent
// of the lockout window tracked by FailedAttempts and LockedUntil.
type AccountState string

const (
	AccountActive              AccountState = "ACTIVE"
	AccountInactive            AccountState = "INACTIVE"
	AccountSuspended           AccountState = "SUSPENDED"
	AccountLocked              AccountState = "LOCKED"
	AccountPendingVerification AccountState = "PENDING_VERIFICATION"
	AccountDeleted             AccountState = "DELETED"
)

func (s AccountState) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended, AccountLocked,
		AccountPendingVerification, AccountDeleted:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id PHC, or bcrypt for imported accounts
	Role         Role
	State        AccountState

	FailedAttempts int
	LockedUntil    *time.Time

	LastLoginAt *time.Time
	LastLoginIP string

	EmailVerified    bool
	TwoFactorEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedOut reports whether the lockout window is open at now. An expired
// window counts as unlocked even though the row still carries it.
func (a Account) LockedOut(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockRemaining is the time left in the lockout window, or zero.
func (a Account) LockRemaining(now time.Time) time.Duration {
	if !a.LockedOut(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// Enabled reports whether tokens issued to the account are honoured at now.
func (a Account) Enabled(now time.Time) bool {
	return a.State == AccountActive && !a.LockedOut(now)
}
