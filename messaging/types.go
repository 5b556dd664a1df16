// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// LoginRequest is the body of POST /_matrix/client/v3/login for direct
// username+password authentication.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user,omitempty"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// EmailLoginRequest is the body of POST /_matrix/client/v3/login when
// identifying the account by a third-party identifier instead of a
// username. The type is still m.login.password — only the identifier
// block differs.
type EmailLoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               LoginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// LoginIdentifier identifies the account by a third-party binding.
// For email logins, Type is "m.id.thirdparty" and Medium is "email".
type LoginIdentifier struct {
	Type    string `json:"type"`
	Medium  string `json:"medium"`
	Address string `json:"address"`
}

// AuthResponse is the success body of the login endpoint.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// WhoAmIResponse is returned by GET /_matrix/client/v3/account/whoami.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}
