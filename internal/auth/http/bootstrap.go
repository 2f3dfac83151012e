package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the authentication system
//	@Description	Creates the first ADMIN account. Only available when a bootstrap token is configured, and only while no account exists.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token for authorization"
//	@Param			request				body		authsdk.BootstrapRequest		true	"Admin account"
//	@Success		201					{object}	authsdk.BootstrapResponse		"Admin account created"
//	@Failure		400					{object}	authsdk.ValidationErrorResponse	"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.ErrorResponse			"Missing or invalid bootstrap token"
//	@Failure		404					{object}	authsdk.ErrorResponse			"Bootstrap not enabled (no token configured)"
//	@Failure		409					{object}	authsdk.ErrorResponse			"System already bootstrapped"
//	@Failure		500					{object}	authsdk.ErrorResponse			"Failed to create admin account"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		writeErr(w, http.StatusNotFound, authsdk.ErrorCodeNotFound, "Bootstrap endpoint is not enabled")
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		writeErr(w, http.StatusUnauthorized, "unauthorized",
			"Bootstrap token is required in X-Bootstrap-Token header")
		return
	}

	// 3. Parse request body and validate
	var req authsdk.BootstrapRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Request body must be valid JSON")
		return
	}
	req.AdminUsername = strings.TrimSpace(req.AdminUsername)
	req.AdminEmail = strings.TrimSpace(req.AdminEmail)
	if errs := req.Validate(); errs != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Error:            authsdk.ErrorCodeInvalidRequest,
			ErrorDescription: "validation failed for some fields",
			Details:          errs,
		})
		return
	}

	// 4. Perform bootstrap
	admin, err := h.BootstrapService.Bootstrap(r.Context(), token, domain.BootstrapData{
		AdminUsername: req.AdminUsername,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapUnauthorized):
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid bootstrap token")
		case errors.Is(err, service.ErrBootstrapAlready):
			writeErr(w, http.StatusConflict, authsdk.ErrorCodeConflict, "System has already been bootstrapped")
		case errors.Is(err, service.ErrInvalidInput):
			writeBadRequest(w, err.Error())
		case errors.Is(err, service.ErrBootstrapFailedToCreateAdmin):
			writeErr(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Failed to create admin account")
		default:
			writeServiceError(w, r, err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{AdminAccountID: admin.ID})
}
