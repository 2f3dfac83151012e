package service

import (
	"sync"

	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
)

// CredentialVerifier checks secrets against stored password hashes.
type CredentialVerifier struct {
	dummyOnce sync.Once
	dummy     string
}

// Verify reports whether secret matches hash. Unknown hash formats never match.
func (v *CredentialVerifier) Verify(secret, hash string) bool {
	return cryptox.VerifyPassword(secret, hash) == nil
}

// VerifyUnknown burns the same work as Verify for an identifier with no
// account, so response time does not reveal whether the account exists.
func (v *CredentialVerifier) VerifyUnknown(secret string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = cryptox.HashPassword("not-a-real-password")
	})
	_ = cryptox.VerifyPassword(secret, v.dummy)
}

// NeedsRehash reports hashes that should be upgraded after a successful login.
func (v *CredentialVerifier) NeedsRehash(hash string) bool {
	return cryptox.NeedsRehash(hash)
}

func (v *CredentialVerifier) Hash(secret string) (string, error) {
	return cryptox.HashPassword(secret)
}
