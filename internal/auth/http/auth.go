package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
)

// AuthHandler serves the login, refresh, logout and validation endpoints.
type AuthHandler struct {
	AuthService *service.AuthService
}

// HandleLogin authenticates a username or email with a password.
//
//	@Summary		Log in
//	@Description	Verifies the credentials and opens a new session. Repeated failures lock the account for a while.
//	@Description	Accounts with two-factor enabled get 409 step_up_required and no session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body or unknown session class"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"account_unavailable"
//	@Failure		409		{object}	authsdk.ErrorResponse	"step_up_required"
//	@Failure		423		{object}	authsdk.ErrorResponse	"account_locked"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate_limit_exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be a valid login object")
		return
	}

	res, err := h.AuthService.Login(r.Context(),
		strings.TrimSpace(req.Identifier),
		req.Password,
		domain.SessionMetadata{
			IPAddress:    httpx.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Device:       strings.TrimSpace(req.Device),
			SessionClass: domain.SessionClass(strings.ToUpper(req.SessionClass)),
		},
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.StepUpRequired {
		httpx.WriteJSON(w, http.StatusConflict, authsdk.ErrorResponse{
			Error:            authsdk.ErrorCodeStepUpRequired,
			ErrorDescription: "a second factor is required to complete login",
			AccountID:        res.Account.ID,
		})
		return
	}

	resp := tokenResponse(res.SessionID, res.Tokens)
	resp.Account = &authsdk.AccountSummary{
		ID:            res.Account.ID,
		Username:      res.Account.Username,
		Email:         res.Account.Email,
		Role:          string(res.Account.Role),
		EmailVerified: res.Account.EmailVerified,
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRefresh exchanges a refresh token for a new token pair.
//
//	@Summary		Refresh tokens
//	@Description	Rotates the session's tokens. The presented refresh token is spent; replaying it fails.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		503		{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	res, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(res.SessionID, res.Tokens))
}

// HandleLogout ends the caller's current session.
//
//	@Summary		Log out
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())
	if err := h.AuthService.Logout(r.Context(), id.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll ends every session of the caller's account.
//
//	@Summary		Log out everywhere
//	@Description	Access tokens already issued remain valid until they expire.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.LogoutAllResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/logout-all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())
	n, err := h.AuthService.LogoutAll(r.Context(), id.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{Invalidated: n})
}

// HandleLogoutOthers ends every session of the caller's account but the current one.
//
//	@Summary		Log out other sessions
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.LogoutAllResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/logout-others [post].
func (h *AuthHandler) HandleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())
	n, err := h.AuthService.LogoutOthers(r.Context(), id.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{Invalidated: n})
}

// HandleValidate describes the principal behind the bearer token.
//
//	@Summary		Validate an access token
//	@Description	Succeeds only while the account is ACTIVE and not locked out.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ValidateResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/auth/validate [get].
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{
		AccountID:     id.Subject,
		SessionID:     id.SessionID,
		Role:          id.Role,
		SessionClass:  id.SessionClass,
		Permissions:   id.Scopes,
		EmailVerified: id.EmailVerified,
		ExpiresAt:     id.ExpiresAt,
	})
}

func tokenResponse(sessionID string, t domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(t.AccessTTL.Seconds()),
		RefreshExpiresIn: int(t.RefreshTTL.Seconds()),
		SessionID:        sessionID,
	}
}
