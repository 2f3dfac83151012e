package jwtx

import (
	"github.com/golang-jwt/jwt/v5"
)

// Signer mints HS256 tokens with the ring's current secret.
type Signer struct {
	ring *SecretRing
}

func NewSigner(ring *SecretRing) *Signer {
	return &Signer{ring: ring}
}

func (s *Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign encodes and signs claims, stamping the kid of the secret used.
func (s *Signer) Sign(claims Claims) (string, error) {
	sec, err := s.ring.load()
	if err != nil {
		return "", err
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = sec.kid
	return t.SignedString(sec.key)
}
