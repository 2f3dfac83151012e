package http

import (
	"net/http"

	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
)

type SessionsHandler struct {
	AuthService *service.AuthService
}

// HandleList lists the caller's sessions.
//
//	@Summary		List sessions
//	@Description	Returns every session of the caller's account, newest first, marking the current one.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ListSessionsResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		403	{object}	authsdk.ErrorResponse	"insufficient_scope"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())

	views, err := h.AuthService.ListSessions(r.Context(), id.Subject, id.SessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.ListSessionsResponse{Sessions: make([]authsdk.SessionInfo, 0, len(views))}
	for _, v := range views {
		out.Sessions = append(out.Sessions, authsdk.SessionInfo{
			ID:             v.ID,
			SessionClass:   string(v.SessionClass),
			Device:         v.Device,
			IPAddress:      v.IPAddress,
			UserAgent:      v.UserAgent,
			CreatedAt:      v.CreatedAt,
			LastAccessedAt: v.LastAccessedAt,
			ExpiresAt:      v.ExpiresAt,
			LoggedOutAt:    v.LoggedOutAt,
			Current:        v.Current,
			Valid:          v.Valid,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke ends one of the caller's sessions.
//
//	@Summary		Revoke a session
//	@Description	Idempotent. Sessions belonging to other accounts are reported as not found.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Session ID"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Failure		503	{object}	authsdk.ErrorResponse	"temporarily_unavailable"
//	@Router			/v1/sessions/{id} [delete].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())

	if err := h.AuthService.LogoutSession(r.Context(), id.Subject, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
