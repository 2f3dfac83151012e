package service

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
)

// TokenCodec mints and verifies the signed tokens. It never consults
// storage; revocation is layered on top by the callers.
type TokenCodec struct {
	Signer   *jwtx.Signer
	Verifier *jwtx.Verifier
	Issuer   string
}

// TokenSubject is what a token pair asserts.
type TokenSubject struct {
	AccountID    string
	SessionID    string
	Role         domain.Role
	SessionClass domain.SessionClass
}

// Issue mints one token of the given use valid from now for ttl.
func (c *TokenCodec) Issue(sub TokenSubject, use jwtx.TokenUse, ttl time.Duration, now time.Time) (string, error) {
	claims := jwtx.NewClaims(use, sub.AccountID, sub.SessionID, c.Issuer, ttl, now)
	claims.Role = string(sub.Role)
	claims.SessionClass = string(sub.SessionClass)
	if use == jwtx.UseAccess {
		claims.Scopes = domain.PermissionsFor(sub.Role)
	}
	return c.Signer.Sign(claims)
}

// IssuePair mints an access and a refresh token for the same session.
func (c *TokenCodec) IssuePair(sub TokenSubject, accessTTL, refreshTTL time.Duration, now time.Time) (domain.TokenPair, error) {
	access, err := c.Issue(sub, jwtx.UseAccess, accessTTL, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := c.Issue(sub, jwtx.UseRefresh, refreshTTL, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		AccessTTL:        accessTTL,
		RefreshTTL:       refreshTTL,
	}, nil
}

// Verify checks token for the given use. Every failure matches ErrInvalidToken.
func (c *TokenCodec) Verify(token string, use jwtx.TokenUse) (jwtx.Claims, error) {
	claims, err := c.Verifier.Verify(token, use)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
