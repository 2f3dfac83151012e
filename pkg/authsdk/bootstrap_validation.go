package authsdk

import (
	"net/mail"
	"regexp"
	"strings"
)

const (
	requiredReason = "required"
	onlyNameChars  = "must only contain a-z, A-Z, 0-9, '.', '_' or '-'"
)

var reName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validate checks if the bootstrap request fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateUsername(errs, "admin_username", b.AdminUsername)
	validateEmail(errs, "admin_email", b.AdminEmail)
	validatePassword(errs, "admin_password", b.AdminPassword)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the account fields the same way the server does.
func (c CreateAccountRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateUsername(errs, "username", c.Username)
	validateEmail(errs, "email", c.Email)
	validatePassword(errs, "password", c.Password)
	switch c.Role {
	case "", "USER", "ADMIN":
	default:
		errs["role"] = "must be USER or ADMIN"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateUsername(errs map[string]string, field, v string) {
	username := strings.TrimSpace(v)
	switch {
	case username == "":
		errs[field] = requiredReason
	case len(username) < 3 || len(username) > 32:
		errs[field] = "must be 3-32 characters"
	case !reName.MatchString(username):
		errs[field] = onlyNameChars
	}
}

func validateEmail(errs map[string]string, field, v string) {
	email := strings.TrimSpace(v)
	if email == "" {
		errs[field] = requiredReason
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs[field] = "must be a plain email address"
	}
}

func validatePassword(errs map[string]string, field, pw string) {
	switch {
	case pw == "":
		errs[field] = requiredReason
	case len(pw) < 8:
		errs[field] = "too short (min 8)"
	case len(pw) > 128:
		errs[field] = "too long (max 128)"
	}
}
