package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
)

// AccountsHandler serves the administrative account endpoints. Every route
// requires an accounts permission and a verified email.
type AccountsHandler struct {
	AccountService *service.AccountService
}

// HandleCreate registers a new account.
//
//	@Summary		Create an account
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateAccountRequest	true	"Account"
//	@Success		201		{object}	authsdk.AccountResponse
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Validation failed"
//	@Failure		401		{object}	authsdk.ErrorResponse			"invalid_token"
//	@Failure		403		{object}	authsdk.ErrorResponse			"insufficient_scope or email_not_verified"
//	@Failure		409		{object}	authsdk.ErrorResponse			"Username or email taken"
//	@Router			/v1/accounts [post].
func (h *AccountsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateAccountRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

	if errs := req.Validate(); errs != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Error:            authsdk.ErrorCodeInvalidRequest,
			ErrorDescription: "validation failed for some fields",
			Details:          errs,
		})
		return
	}

	acct, err := h.AccountService.Create(r.Context(), service.NewAccount{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		Role:          domain.Role(req.Role),
		EmailVerified: req.EmailVerified,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, accountResponse(acct))
}

// HandleGet returns one account.
//
//	@Summary		Get an account
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Account ID"
//	@Success		200	{object}	authsdk.AccountResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/accounts/{id} [get].
func (h *AccountsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	acct, err := h.AccountService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, accountResponse(acct))
}

// HandleSetState changes an account's administrative state.
//
//	@Summary		Set account state
//	@Description	Moving an account out of ACTIVE makes its access tokens fail validation immediately.
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string							true	"Account ID"
//	@Param			request	body	authsdk.SetAccountStateRequest	true	"New state"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"Unknown state"
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/accounts/{id}/state [put].
func (h *AccountsHandler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetAccountStateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}

	state := domain.AccountState(strings.ToUpper(strings.TrimSpace(req.State)))
	if err := h.AccountService.SetState(r.Context(), r.PathValue("id"), state); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock clears an account's failed-attempt counter and lockout window.
//
//	@Summary		Unlock an account
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Account ID"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/accounts/{id}/unlock [post].
func (h *AccountsHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := h.AccountService.Unlock(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetTwoFactor toggles whether login requires a second factor.
//
//	@Summary		Toggle two-factor
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string						true	"Account ID"
//	@Param			request	body	authsdk.SetTwoFactorRequest	true	"Toggle"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/accounts/{id}/two-factor [put].
func (h *AccountsHandler) HandleSetTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetTwoFactorRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	if err := h.AccountService.SetTwoFactor(r.Context(), r.PathValue("id"), req.Enabled); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetEmailVerified records whether an account's email address has been
// verified.
//
//	@Summary		Mark an email address verified
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string							true	"Account ID"
//	@Param			request	body	authsdk.SetEmailVerifiedRequest	true	"Verified flag"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/accounts/{id}/email-verified [put].
func (h *AccountsHandler) HandleSetEmailVerified(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetEmailVerifiedRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	if err := h.AccountService.SetEmailVerified(r.Context(), r.PathValue("id"), req.Verified); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func accountResponse(a domain.Account) authsdk.AccountResponse {
	return authsdk.AccountResponse{
		ID:               a.ID,
		Username:         a.Username,
		Email:            a.Email,
		Role:             string(a.Role),
		State:            string(a.State),
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		FailedAttempts:   a.FailedAttempts,
		LockedUntil:      a.LockedUntil,
		CreatedAt:        a.CreatedAt,
	}
}
