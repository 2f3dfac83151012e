package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestPostgresBackend runs the main session lifecycle against the Postgres
// driver.
func TestPostgresBackend(t *testing.T) {
	client := setupAuthContainerWithPostgres(t)

	ready, err := client.Readyz(t.Context())
	assertHealthy(t, ready, err)

	admin := loginAdmin(t, client)
	reader := createReader(t, admin, "reader")

	first, err := client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: userPassword})
	require.NoError(t, err)
	assertTokenResponse(t, first)

	second, err := client.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)
	_, err = client.Refresh(t.Context(), first.RefreshToken)
	assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	session := client.NewSessionFromTokens(second.AccessToken, second.RefreshToken, second.ExpiresIn)
	info, err := session.Validate(t.Context())
	require.NoError(t, err)
	require.Equal(t, reader.ID, info.AccountID)

	n, err := session.LogoutAll(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	for range 4 {
		_, err = client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: "wrong-password"})
		assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	}
	_, err = client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: "wrong-password"})
	assertAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
}
