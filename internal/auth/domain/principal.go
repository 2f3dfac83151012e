package domain

import (
	"slices"
	"time"
)

// Permissions granted by each role. They travel in the access token's scopes
// claim and are what downstream authorization consumes.
var rolePermissions = map[Role][]string{
	RoleUser:  {"sessions:read", "sessions:write"},
	RoleAdmin: {"sessions:read", "sessions:write", "accounts:read", "accounts:write"},
}

const (
	PermSessionsRead  = "sessions:read"
	PermSessionsWrite = "sessions:write"
	PermAccountsRead  = "accounts:read"
	PermAccountsWrite = "accounts:write"
)

// PermissionsFor returns a copy of the permission set for role.
func PermissionsFor(r Role) []string {
	return slices.Clone(rolePermissions[r])
}

// Principal is the authenticated caller produced by access-token validation.
type Principal struct {
	AccountID     string
	SessionID     string
	Role          Role
	SessionClass  SessionClass
	Permissions   []string
	EmailVerified bool

	// ExpiresAt is when the presented access token stops validating.
	ExpiresAt time.Time
}
