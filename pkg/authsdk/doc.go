/*
Package authsdk provides a client SDK for the bookshelf authentication service.

# SDKClient vs Session

The package is organized around two main types:

  - SDKClient: unauthenticated operations (login, refresh, bootstrap, health)
  - Session: authenticated operations with automatic token refresh

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Authenticate(ctx, authsdk.LoginRequest{
		Identifier: "alice",
		Password:   "correct horse battery",
		Device:     "laptop",
	})
	if authsdk.IsStepUpRequired(err) {
		// The account has two-factor enabled; no session was created.
	}

	principal, err := session.Validate(ctx)
	sessions, err := session.ListSessions(ctx)
	n, err := session.LogoutOthers(ctx)
	err = session.Logout(ctx)

# Automatic Token Refresh

Session methods call getValidToken internally, which refreshes the access
token 30 seconds before it expires. Refresh tokens are single use: the
Session stores the rotated pair, so two processes must not share one.

# Error Handling

Every non-2xx response becomes an *APIError carrying the service's error
code, description and, for account_locked and rate_limit_exceeded, the
RetryAfter duration:

	_, err := client.Login(ctx, req)
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeAccountLocked {
		time.Sleep(apiErr.RetryAfter)
	}

# Thread Safety

Sessions are safe for concurrent use.
*/
package authsdk
