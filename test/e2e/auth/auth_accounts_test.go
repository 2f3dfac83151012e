package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestAccountAdministration exercises the admin account endpoints end to end.
func TestAccountAdministration(t *testing.T) {
	client := setupAuthContainer(t)
	admin := loginAdmin(t, client)

	reader := createReader(t, admin, "reader")
	require.Equal(t, "ACTIVE", reader.State)
	require.True(t, reader.EmailVerified)

	t.Run("duplicate username", func(t *testing.T) {
		_, err := admin.CreateAccount(t.Context(), authsdk.CreateAccountRequest{
			Username: "reader",
			Email:    "someone-else@bookshelf.test",
			Password: userPassword,
		})
		assertAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := admin.CreateAccount(t.Context(), authsdk.CreateAccountRequest{
			Username: "x",
			Email:    "not-an-email",
			Password: "short",
		})
		apiErr := assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
		require.NotEmpty(t, apiErr.Details)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := admin.GetAccount(t.Context(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assertAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})

	t.Run("readers cannot administer", func(t *testing.T) {
		session := performLogin(t, client, "reader", userPassword)
		_, err := session.CreateAccount(t.Context(), authsdk.CreateAccountRequest{
			Username: "sneaky",
			Email:    "sneaky@bookshelf.test",
			Password: userPassword,
		})
		assertAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("suspension ends access", func(t *testing.T) {
		session := performLogin(t, client, "reader", userPassword)
		_, err := session.Validate(t.Context())
		require.NoError(t, err)

		require.NoError(t, admin.SetAccountState(t.Context(), reader.ID, "SUSPENDED"))

		_, err = session.Validate(t.Context())
		assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
		assertAPIError(t, session.Refresh(t.Context()), http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

		// A suspended account can still end its own sessions.
		require.NoError(t, session.Logout(t.Context()))

		require.NoError(t, admin.SetAccountState(t.Context(), reader.ID, "ACTIVE"))
		performLogin(t, client, "reader", userPassword)
	})
}
