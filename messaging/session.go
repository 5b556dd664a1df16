// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boxel-foundation/realm/lib/secret"
)

// DirectSession is an authenticated Matrix session: a Client plus an
// access token. Sessions are lightweight and safe to create in large
// numbers; they are never persisted — only the credential they were
// built from is durable.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked
// against swap, excluded from core dumps). The caller must call Close
// when the session is no longer needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      string
	deviceID    string
}

// UserID returns the fully-qualified Matrix user ID
// (e.g., "@admin:realm.example").
func (s *DirectSession) UserID() string {
	return s.userID
}

// DeviceID returns the device ID for this session. Empty when the
// session was built from a cached credential that predates device
// tracking.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// AccessToken returns the access token as a heap string. This creates a
// brief copy from the mmap-backed buffer — use only at API boundaries
// that require a string (serializing a credential, writing a session
// file). Prefer passing the DirectSession itself when possible.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// Close releases the access token memory (zeros, unlocks, unmaps).
// Idempotent — safe to call multiple times.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the user ID.
// Useful for checking whether a stored token is still valid.
func (s *DirectSession) WhoAmI(ctx context.Context) (string, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// AccountData fetches a global account data event for the session's
// user. Returns the raw JSON content for the caller to unmarshal.
//
// If no account data of this type exists, returns a *MatrixError with
// code M_NOT_FOUND.
func (s *DirectSession) AccountData(ctx context.Context, eventType string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/user/%s/account_data/%s",
		url.PathEscape(s.userID),
		url.PathEscape(eventType),
	)

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get account data %s failed: %w", eventType, err)
	}
	return json.RawMessage(body), nil
}

// Logout invalidates this session's access token on the homeserver and
// deletes the associated device. The session is unusable afterwards;
// the caller should also drop any cached credential for it and Close
// the session.
func (s *DirectSession) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}
