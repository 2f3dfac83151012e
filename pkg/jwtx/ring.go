package jwtx

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
)

// MinSecretLength is the shortest HMAC secret accepted, in bytes.
const MinSecretLength = 32

var ErrWeakSecret = errors.New("jwtx: signing secret too short")

type secret struct {
	kid string
	key []byte
}

// SecretRing holds the one HMAC secret tokens are signed and verified with.
//
// Rotation replaces the secret outright. Tokens minted under the previous
// secret carry its kid and fail verification from that moment on; there is
// no grace window. Deployments rotate by changing the configured secret and
// either restarting or sending SIGHUP.
type SecretRing struct {
	current atomic.Pointer[secret]
}

// NewSecretRing returns a ring holding key.
func NewSecretRing(key []byte) (*SecretRing, error) {
	r := &SecretRing{}
	if err := r.Rotate(key); err != nil {
		return nil, err
	}
	return r, nil
}

// Rotate installs key as the current secret.
func (r *SecretRing) Rotate(key []byte) error {
	if len(key) < MinSecretLength {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	r.current.Store(&secret{kid: KeyID(k), key: k})
	return nil
}

// KID identifies the current secret.
func (r *SecretRing) KID() string {
	if s := r.current.Load(); s != nil {
		return s.kid
	}
	return ""
}

// IsReady reports whether a secret is loaded.
func (r *SecretRing) IsReady() bool {
	return r != nil && r.current.Load() != nil
}

func (r *SecretRing) load() (*secret, error) {
	s := r.current.Load()
	if s == nil {
		return nil, errors.New("jwtx: no signing secret loaded")
	}
	return s, nil
}

// KeyID derives a public identifier for key. It is a truncated SHA-256 so the
// header reveals nothing useful about the secret.
func KeyID(key []byte) string {
	sum := sha256.Sum256(key)
	return base64.RawURLEncoding.EncodeToString(sum[:9])
}
