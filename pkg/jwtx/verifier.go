package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrWrongUse     = errors.New("jwtx: wrong token use")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// VerifyOptions captures what a verifier enforces beyond the signature.
type VerifyOptions struct {
	// Issuer the token must carry. Empty means "don't care".
	Issuer string

	// Leeway allows small clock skew on exp/nbf/iat.
	Leeway time.Duration

	// Now is the clock used for time based claims. Defaults to time.Now.
	Now func() time.Time
}

// Verifier checks HS256 tokens against the ring's current secret.
type Verifier struct {
	ring *SecretRing
	opts VerifyOptions
}

func NewVerifier(ring *SecretRing, opts VerifyOptions) *Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Verifier{ring: ring, opts: opts}
}

// Verify parses tokenStr and returns its claims when the signature, kid,
// issuer, time window and token use all check out. Every failure maps onto
// one of the package's sentinel errors.
func (v *Verifier) Verify(tokenStr string, use TokenUse) (Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithTimeFunc(v.opts.Now),
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}

	var claims Claims
	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenStr, &claims, v.keyFunc)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidClaim
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}
	if claims.Use != use {
		return Claims{}, ErrWrongUse
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	sec, err := v.ring.load()
	if err != nil {
		return nil, err
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid != sec.kid {
		return nil, ErrUnknownKID
	}
	return sec.key, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		// Also covers an alg outside WithValidMethods.
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return ErrInvalidSig
		}
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	default:
		return ErrInvalidClaim
	}
}
