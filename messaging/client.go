// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/boxel-foundation/realm/lib/netutil"
	"github.com/boxel-foundation/realm/lib/secret"
)

// deviceDisplayName is the initial_device_display_name sent on live
// logins, so realm sessions are recognizable in the homeserver's
// device list.
const deviceDisplayName = "realm"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver backing
	// the realm (e.g., "http://localhost:8008").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. Timeouts are inherited from this client and the request
	// context — the login tiers add none of their own.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Validate the URL structure. We store the string form (with
	// trailing slash stripped) and build request URLs by direct
	// concatenation, which sidesteps url.URL re-encoding issues with
	// escaped path segments.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login authenticates with username and password, returning a DirectSession.
// The password Buffer is read but not closed — the caller retains ownership.
//
// No device_id is sent, so the homeserver registers a fresh device for
// each live login. Callers avoid device churn by caching the resulting
// credential and reconstructing sessions with SessionFromToken.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*DirectSession, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	loginRequest := LoginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		InitialDeviceDisplayName: deviceDisplayName,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in to homeserver",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// LoginWithEmail authenticates with a third-party identifier (medium:
// email) bound to the account, using the same password login type. This
// is the fallback for accounts whose localpart differs from the email
// they registered with. The password Buffer is read but not closed.
//
// On a non-2xx response the returned error wraps a *MatrixError
// carrying the server's errcode, message, and HTTP status.
func (c *Client) LoginWithEmail(ctx context.Context, email string, password *secret.Buffer) (*DirectSession, error) {
	if email == "" {
		return nil, fmt.Errorf("messaging: email is required for email login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for email login")
	}

	loginRequest := EmailLoginRequest{
		Type: "m.login.password",
		Identifier: LoginIdentifier{
			Type:    "m.id.thirdparty",
			Medium:  "email",
			Address: email,
		},
		Password:                 password.String(),
		InitialDeviceDisplayName: deviceDisplayName,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: email login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse email login response: %w", err)
	}

	c.logger.Info("logged in to homeserver via email identifier",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// SessionFromToken creates a DirectSession from a cached credential.
// The token is moved into mmap-backed memory (locked against swap,
// excluded from core dumps).
//
// This is a purely local construction — no network round-trip. It does
// NOT validate the token; the first API call will fail if the token has
// been revoked. It does reject structurally unusable credentials (empty
// user ID or token), which is how a malformed cache entry surfaces.
//
// The caller must call Close on the returned session when done.
func (c *Client) SessionFromToken(userID, deviceID, accessToken string) (*DirectSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("messaging: user ID is required to build a session")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("messaging: access token is required to build a session")
	}

	tokenBuffer, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromString(auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      auth.UserID,
		deviceID:    auth.DeviceID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver and returns the response body.
// On 2xx, returns the body. On 4xx/5xx, returns a *MatrixError.
// accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		// Server returned non-JSON error. This should not happen with a
		// spec-compliant server, but fail loud with the raw body.
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode

	return responseBody, &matrixErr
}
