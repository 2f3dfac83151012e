package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Account administration. These calls need an ADMIN session whose account
// has a verified email.

// CreateAccount registers a new account.
func (s *Session) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/accounts", req)
	if err != nil {
		return nil, err
	}

	var out AccountResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches one account by id.
func (s *Session) GetAccount(ctx context.Context, accountID string) (*AccountResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return nil, err
	}

	var out AccountResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAccountState changes an account's administrative state.
func (s *Session) SetAccountState(ctx context.Context, accountID, state string) error {
	return s.accountCommand(ctx, http.MethodPut, accountID, "state", SetAccountStateRequest{State: state})
}

// UnlockAccount clears an account's lockout window and failed-attempt counter.
func (s *Session) UnlockAccount(ctx context.Context, accountID string) error {
	return s.accountCommand(ctx, http.MethodPost, accountID, "unlock", nil)
}

// SetTwoFactor toggles whether login requires a second factor.
func (s *Session) SetTwoFactor(ctx context.Context, accountID string, enabled bool) error {
	return s.accountCommand(ctx, http.MethodPut, accountID, "two-factor", SetTwoFactorRequest{Enabled: enabled})
}

// SetEmailVerified records whether the account's email address is verified.
func (s *Session) SetEmailVerified(ctx context.Context, accountID string, verified bool) error {
	return s.accountCommand(ctx, http.MethodPut, accountID, "email-verified", SetEmailVerifiedRequest{Verified: verified})
}

func (s *Session) accountCommand(ctx context.Context, method, accountID, action string, payload any) error {
	resp, err := s.doAuthRequest(ctx, method, "/v1/accounts/"+url.PathEscape(accountID)+"/"+action, payload)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
