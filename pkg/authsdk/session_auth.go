package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Logout ends this session. The session cannot be refreshed afterwards.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// LogoutAll ends every session of the account, this one included.
func (s *Session) LogoutAll(ctx context.Context) (int64, error) {
	return s.bulkLogout(ctx, "/v1/auth/logout-all")
}

// LogoutOthers ends every session of the account except this one.
func (s *Session) LogoutOthers(ctx context.Context) (int64, error) {
	return s.bulkLogout(ctx, "/v1/auth/logout-others")
}

func (s *Session) bulkLogout(ctx context.Context, path string) (int64, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return 0, err
	}

	var out LogoutAllResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Invalidated, nil
}

// Validate returns the principal behind the session's access token.
func (s *Session) Validate(ctx context.Context) (*ValidateResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/auth/validate", nil)
	if err != nil {
		return nil, err
	}

	var out ValidateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions lists the account's sessions, newest first.
func (s *Session) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/sessions", nil)
	if err != nil {
		return nil, err
	}

	var out ListSessionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession ends one of the account's sessions by id.
func (s *Session) RevokeSession(ctx context.Context, sessionID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
