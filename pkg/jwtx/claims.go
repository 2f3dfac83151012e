package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes. Services override them from configuration.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUse distinguishes access tokens from refresh tokens. A token minted
// for one use never verifies for the other.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims are the claims carried by every token this service mints.
type Claims struct {
	jwt.RegisteredClaims

	Use TokenUse `json:"token_use"`

	// Session ID the token pair is bound to.
	SID string `json:"sid,omitempty"`

	// Role and session class of the principal at issue time. Consumers must
	// not trust Role for authorization without the account re-check.
	Role         string `json:"role,omitempty"`
	SessionClass string `json:"scl,omitempty"`

	// Permission set derived from the role, e.g. "sessions:read".
	Scopes []string `json:"scopes,omitempty"`
}

// NewClaims builds claims for a token of the given use, valid from now for ttl.
func NewClaims(use TokenUse, subject, sid, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Use: use,
		SID: sid,
	}
}

// NewJTI returns a random URL-safe token identifier. Two tokens minted for
// the same subject in the same second therefore never collide.
func NewJTI() string {
	var b [18]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Expiry returns the exp claim in UTC, or the zero time if absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}
