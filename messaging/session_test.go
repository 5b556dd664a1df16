// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testSession creates a client against the given server and builds a
// session from a fixed token.
func testSession(t *testing.T, serverURL string) *DirectSession {
	t.Helper()
	client, err := NewClient(ClientConfig{HomeserverURL: serverURL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken("@admin:realm.local", "DEVICE1", "syt_admin_token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestWhoAmI(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/_matrix/client/v3/account/whoami" {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			if request.Header.Get("Authorization") != "Bearer syt_admin_token" {
				t.Errorf("unexpected authorization header: %s", request.Header.Get("Authorization"))
			}
			writer.Header().Set("Content-Type", "application/json")
			json.NewEncoder(writer).Encode(WhoAmIResponse{
				UserID:   "@admin:realm.local",
				DeviceID: "DEVICE1",
			})
		}))
		defer server.Close()

		session := testSession(t, server.URL)
		userID, err := session.WhoAmI(context.Background())
		if err != nil {
			t.Fatalf("WhoAmI failed: %v", err)
		}
		if userID != "@admin:realm.local" {
			t.Errorf("unexpected user ID: %s", userID)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(writer).Encode(MatrixError{
				Code:    ErrCodeUnknownToken,
				Message: "Access token has expired",
			})
		}))
		defer server.Close()

		session := testSession(t, server.URL)
		_, err := session.WhoAmI(context.Background())
		if err == nil {
			t.Fatal("expected error for expired token")
		}
		if !IsMatrixError(err, ErrCodeUnknownToken) {
			t.Errorf("expected M_UNKNOWN_TOKEN error, got: %v", err)
		}
	})
}

func TestAccountData(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			wantPath := "/_matrix/client/v3/user/@admin:realm.local/account_data/com.cardstack.boxel.realms"
			if request.URL.Path != wantPath {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			writer.Header().Set("Content-Type", "application/json")
			writer.Write([]byte(`{"realms":["https://realm.example/base/"]}`))
		}))
		defer server.Close()

		session := testSession(t, server.URL)
		raw, err := session.AccountData(context.Background(), "com.cardstack.boxel.realms")
		if err != nil {
			t.Fatalf("AccountData failed: %v", err)
		}
		if !strings.Contains(string(raw), "realm.example") {
			t.Errorf("unexpected account data: %s", raw)
		}
	})

	t.Run("absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(MatrixError{
				Code:    ErrCodeNotFound,
				Message: "Account data not found",
			})
		}))
		defer server.Close()

		session := testSession(t, server.URL)
		_, err := session.AccountData(context.Background(), "com.cardstack.boxel.realms")
		if !IsMatrixError(err, ErrCodeNotFound) {
			t.Errorf("expected M_NOT_FOUND error, got: %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/logout" {
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		if request.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", request.Method)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte("{}"))
	}))
	defer server.Close()

	session := testSession(t, server.URL)
	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken("@admin:realm.local", "DEVICE1", "syt_token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
