package domain

import "time"

type SessionClass string

const (
	SessionWeb    SessionClass = "WEB"
	SessionMobile SessionClass = "MOBILE"
	SessionAPI    SessionClass = "API"
	SessionAdmin  SessionClass = "ADMIN"
)

func (c SessionClass) Valid() bool {
	switch c {
	case SessionWeb, SessionMobile, SessionAPI, SessionAdmin:
		return true
	}
	return false
}

// Session binds one token pair to an account. The token columns hold
// fingerprints, never the tokens themselves.
type Session struct {
	ID               string
	AccountID        string
	AccessTokenHash  string
	RefreshTokenHash string

	IPAddress    string
	UserAgent    string
	Device       string
	SessionClass SessionClass

	Active         bool
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	LoggedOutAt    *time.Time
	CreatedAt      time.Time
}

// Live reports whether the row itself is usable at now. Callers must also
// check the owning account's lockout before treating the session as valid.
func (s Session) Live(now time.Time) bool {
	return s.Active && s.LoggedOutAt == nil && now.Before(s.ExpiresAt)
}

// SessionMetadata describes where a login came from.
type SessionMetadata struct {
	IPAddress    string
	UserAgent    string
	Device       string
	SessionClass SessionClass
}

// SessionView is a session as shown to its owner.
type SessionView struct {
	Session

	Current bool // the session the caller's token belongs to
	Valid   bool
}
