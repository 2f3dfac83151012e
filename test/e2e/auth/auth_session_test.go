package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRefreshRotation verifies refresh tokens are single use.
func TestRefreshRotation(t *testing.T) {
	client := setupAuthContainer(t)
	bootstrapService(t, client)

	first, err := client.Login(t.Context(), authsdk.LoginRequest{Identifier: adminUsername, Password: adminPassword})
	require.NoError(t, err)

	second, err := client.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)
	assertTokenResponse(t, second)
	require.Equal(t, first.SessionID, second.SessionID)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = client.Refresh(t.Context(), first.RefreshToken)
	assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	_, err = client.Refresh(t.Context(), second.AccessToken)
	assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	_, err = client.Refresh(t.Context(), second.RefreshToken)
	require.NoError(t, err)
}

// TestLogout verifies a logged out session can no longer be refreshed while
// its access token keeps working until it expires.
func TestLogout(t *testing.T) {
	client := setupAuthContainer(t)
	session := loginAdmin(t, client)
	refresh := session.RefreshToken()

	require.NoError(t, session.Logout(t.Context()))

	_, err := client.Refresh(t.Context(), refresh)
	assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	stale := client.NewSessionFromTokens(session.AccessToken(), "", 900)
	_, err = stale.Validate(t.Context())
	require.NoError(t, err)

	// Logging out twice is harmless.
	require.NoError(t, stale.Logout(t.Context()))
}

// TestLogoutOthersAndAll verifies bulk logout counts and which sessions
// survive each call.
func TestLogoutOthersAndAll(t *testing.T) {
	client := setupAuthContainer(t)
	bootstrapService(t, client)

	sessions := make([]*authsdk.Session, 3)
	for i := range sessions {
		sessions[i] = performLogin(t, client, adminUsername, adminPassword)
	}

	n, err := sessions[0].LogoutOthers(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, sessions[0].Refresh(t.Context()))
	for _, s := range sessions[1:] {
		assertAPIError(t, s.Refresh(t.Context()), http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	}

	fresh := performLogin(t, client, adminUsername, adminPassword)
	n, err = fresh.LogoutAll(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, s := range []*authsdk.Session{sessions[0], fresh} {
		assertAPIError(t, s.Refresh(t.Context()), http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	}
}

// TestListAndRevokeSessions verifies a caller can see and end their own
// sessions but not somebody else's.
func TestListAndRevokeSessions(t *testing.T) {
	client := setupAuthContainer(t)
	admin := loginAdmin(t, client)
	createReader(t, admin, "reader")

	phone := performLogin(t, client, "reader", userPassword)
	laptop := performLogin(t, client, "reader", userPassword)

	list, err := laptop.ListSessions(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)

	var current int
	for _, s := range list {
		require.True(t, s.Valid)
		if s.Current {
			current++
			require.Equal(t, laptop.SessionID(), s.ID)
		}
	}
	require.Equal(t, 1, current)

	err = admin.RevokeSession(t.Context(), phone.SessionID())
	assertAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)

	require.NoError(t, laptop.RevokeSession(t.Context(), phone.SessionID()))
	assertAPIError(t, phone.Refresh(t.Context()), http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	list, err = laptop.ListSessions(t.Context())
	require.NoError(t, err)
	for _, s := range list {
		if s.ID == phone.SessionID() {
			require.False(t, s.Valid)
			require.NotNil(t, s.LoggedOutAt)
		}
	}
}
