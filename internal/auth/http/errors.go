package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

// writeServiceError renders a service failure as the uniform error body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	l := slogx.FromContext(r.Context())

	var locked *service.AccountLockedError
	var internal *service.InternalError

	switch {
	case errors.As(err, &locked):
		body := authsdk.ErrorResponse{
			Error:            authsdk.ErrorCodeAccountLocked,
			ErrorDescription: "account is locked",
		}
		if locked.RetryAfter > 0 {
			secs := int(math.Ceil(locked.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			body.RetryAfter = secs
		}
		httpx.WriteJSON(w, http.StatusLocked, body)

	case errors.Is(err, service.ErrAccountUnavailable):
		writeErr(w, http.StatusForbidden, authsdk.ErrorCodeAccountUnavailable, "account is not available")

	case errors.Is(err, service.ErrInvalidCredentials):
		writeErr(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid identifier or password")

	// ErrSessionNotFound also matches ErrInvalidToken; it must be checked first.
	case errors.Is(err, service.ErrSessionNotFound):
		writeErr(w, http.StatusNotFound, authsdk.ErrorCodeNotFound, "session not found")

	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteBearerError(w, "token is invalid, expired or revoked")

	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error())

	case errors.Is(err, service.ErrAccountExists):
		writeErr(w, http.StatusConflict, authsdk.ErrorCodeConflict, "username or email already registered")

	case errors.Is(err, service.ErrNoSuchAccount):
		writeErr(w, http.StatusNotFound, authsdk.ErrorCodeNotFound, "account not found")

	case errors.As(err, &internal):
		l.Error("request failed on a dependency", "op", internal.Op, "err", internal.Cause())
		w.Header().Set("Retry-After", "1")
		writeErr(w, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable,
			"service temporarily unavailable, try again")

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable,
			"request timed out")

	default:
		l.Error("unhandled service error", "err", err)
		writeErr(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "an internal error occurred")
	}
}

func writeErr(w http.ResponseWriter, code int, errCode, desc string) {
	httpx.WriteJSON(w, code, authsdk.ErrorResponse{Error: errCode, ErrorDescription: desc})
}

func writeBadRequest(w http.ResponseWriter, desc string) {
	writeErr(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, desc)
}

// authnError lets a dependency failure during bearer authentication surface
// as 503 instead of a misleading 401.
func (r *Router) authnError(w http.ResponseWriter, req *http.Request, err error) bool {
	if errors.Is(err, service.ErrInternal) {
		writeServiceError(w, req, err)
		return true
	}
	return false
}

func (r *Router) validateBearer(ctx context.Context, token string) (httpx.Identity, error) {
	p, err := r.AuthService.ValidateAccessToken(ctx, token)
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		Subject:       p.AccountID,
		SessionID:     p.SessionID,
		Role:          string(p.Role),
		SessionClass:  string(p.SessionClass),
		Scopes:        p.Permissions,
		EmailVerified: p.EmailVerified,
		ExpiresAt:     p.ExpiresAt,
	}, nil
}

func (r *Router) decodeBearer(_ context.Context, token string) (httpx.Identity, error) {
	c, err := r.AuthService.Codec.Verify(token, jwtx.UseAccess)
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		Subject:      c.Subject,
		SessionID:    c.SID,
		Role:         c.Role,
		SessionClass: c.SessionClass,
		Scopes:       c.Scopes,
		ExpiresAt:    c.Expiry(),
	}, nil
}
