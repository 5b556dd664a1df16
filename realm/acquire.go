// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package realm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/boxel-foundation/realm/authstore"
	"github.com/boxel-foundation/realm/lib/secret"
	"github.com/boxel-foundation/realm/lib/vault"
	"github.com/boxel-foundation/realm/messaging"
)

// AcquirerConfig configures an Acquirer.
type AcquirerConfig struct {
	// Storage holds the persisted credential store. Required.
	Storage vault.Storage

	// HTTPClient overrides the HTTP client used for homeserver
	// requests. Optional; defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger for acquisition progress. Optional; defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Acquirer turns a (server URL, username, password) triple into a live
// Matrix session, reusing a cached access token when one is stored.
//
// Acquirer performs no cross-call coordination: concurrent acquisitions
// for the same server/username pair may each perform a live login, and
// whichever persists last wins. Callers that need single-flight
// behavior must serialize externally.
type Acquirer struct {
	storage    vault.Storage
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAcquirer creates an Acquirer backed by the given storage.
func NewAcquirer(config AcquirerConfig) (*Acquirer, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("realm: storage is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		storage:    config.Storage,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AcquireSession returns an authenticated session for the given user on
// the given homeserver. Three tiers are tried in order, one attempt
// each, no retries:
//
//  1. A cached access token for the normalized server URL and username.
//     A hit builds the session locally with no network traffic.
//  2. A password login with the username as a Matrix localpart.
//  3. A password login with the username as a third-party email address.
//
// A successful live login (tier 2 or 3) writes the fresh credential
// back to the store before returning. Only a tier 3 failure is
// terminal; its error wraps the homeserver's *messaging.MatrixError so
// callers can inspect the errcode and HTTP status via errors.As.
//
// The password buffer is only read, never closed; it remains owned by
// the caller.
func (a *Acquirer) AcquireSession(ctx context.Context, serverURL, username string, password *secret.Buffer) (*messaging.DirectSession, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("realm: server URL is required")
	}
	if username == "" {
		return nil, fmt.Errorf("realm: username is required")
	}
	if password == nil {
		return nil, fmt.Errorf("realm: password is required")
	}

	serverURL = authstore.NormalizeServerURL(serverURL)
	logger := a.logger.With("server", serverURL, "username", username)

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: serverURL,
		HTTPClient:    a.httpClient,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("realm: creating homeserver client: %w", err)
	}

	store := authstore.Load(a.storage, a.logger)

	if credential, ok := store.Get(serverURL, username); ok {
		session, err := client.SessionFromToken(credential.UserID, credential.DeviceID, credential.AccessToken)
		if err == nil {
			logger.Debug("reusing cached credential", "user_id", credential.UserID)
			return session, nil
		}
		logger.Warn("cached credential unusable, logging in again", "error", err)
	}

	session, err := client.Login(ctx, username, password)
	if err == nil {
		a.storeCredential(store, serverURL, username, session, logger)
		return session, nil
	}
	logger.Debug("password login failed, trying email login", "error", err)

	session, err = client.LoginWithEmail(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("realm: login for %q on %s failed: %w", username, serverURL, err)
	}
	a.storeCredential(store, serverURL, username, session, logger)
	return session, nil
}

// Forget removes the cached credential for the given server/username
// pair, if any, and persists the store. The next acquisition will
// perform a live login.
func (a *Acquirer) Forget(serverURL, username string) error {
	serverURL = authstore.NormalizeServerURL(serverURL)
	store := authstore.Load(a.storage, a.logger)
	if _, ok := store.Get(serverURL, username); !ok {
		return nil
	}
	store.Delete(serverURL, username)
	if err := store.Persist(a.storage); err != nil {
		return fmt.Errorf("realm: persisting credential store: %w", err)
	}
	return nil
}

// storeCredential writes a fresh credential through to storage. A
// persist failure is logged but does not fail the acquisition: the
// session is live, only the cache for future runs is lost.
func (a *Acquirer) storeCredential(store *authstore.Store, serverURL, username string, session *messaging.DirectSession, logger *slog.Logger) {
	store.Put(serverURL, username, authstore.Credential{
		AccessToken: session.AccessToken(),
		UserID:      session.UserID(),
		DeviceID:    session.DeviceID(),
	})
	if err := store.Persist(a.storage); err != nil {
		logger.Warn("failed to persist credential store", "error", err)
		return
	}
	logger.Info("logged in", "user_id", session.UserID(), "device_id", session.DeviceID())
}
