// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package authstore holds cached realm login credentials, keyed by
// homeserver URL and username. The whole store is serialized as one
// JSON blob under the single vault key "auth":
//
//	{
//	  "http://realm.example/": {
//	    "admin": {"access_token": "...", "user_id": "...", "device_id": "..."}
//	  }
//	}
//
// Reusing a cached credential on reconnect avoids re-authenticating,
// creating a new device record on every login, and tripping homeserver
// rate limits. The store is loaded per acquisition and persisted in
// full after every successful login — there is no batching and no
// long-lived in-process cache, so external writers to the same vault
// key are picked up on the next acquisition.
package authstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boxel-foundation/realm/lib/vault"
)

// StorageKey is the vault key under which the serialized store lives.
const StorageKey = "auth"

// Credential is one authenticated session's durable state, exactly as
// returned by the homeserver's login endpoint. A Credential is only
// ever written after a successful login; it is never partially
// populated.
type Credential struct {
	// AccessToken is the opaque bearer token for authenticated calls.
	AccessToken string `json:"access_token"`

	// UserID is the fully-qualified Matrix user ID assigned by the
	// server (e.g., "@admin:realm.example").
	UserID string `json:"user_id"`

	// DeviceID identifies the device record this login registered.
	// Reusing it keeps the server's device list from growing on every
	// reconnect.
	DeviceID string `json:"device_id"`
}

// Store maps homeserver URL → username → Credential. Server keys are
// held in canonical form (single trailing slash); a later Put for the
// same (server, username) pair replaces the earlier entry in place.
type Store struct {
	servers map[string]map[string]Credential
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{servers: make(map[string]map[string]Credential)}
}

// Load reads the store from the vault. Absent, unreadable, or
// malformed content yields an empty store with a warning log — a
// corrupt cache must never block a fresh login.
func Load(storage vault.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	blob, ok, err := storage.Get(StorageKey)
	if err != nil {
		logger.Warn("failed to read stored auth, proceeding with empty store", "error", err)
		return NewStore()
	}
	if !ok {
		return NewStore()
	}

	servers := make(map[string]map[string]Credential)
	if err := json.Unmarshal([]byte(blob), &servers); err != nil {
		logger.Warn("failed to parse stored auth, logging in again", "error", err)
		return NewStore()
	}
	return &Store{servers: servers}
}

// Get returns the credential cached for (serverURL, username). The
// server key is normalized, so callers with or without a trailing
// slash address the same entry.
func (s *Store) Get(serverURL, username string) (Credential, bool) {
	users, ok := s.servers[NormalizeServerURL(serverURL)]
	if !ok {
		return Credential{}, false
	}
	credential, ok := users[username]
	return credential, ok
}

// Put sets the credential for (serverURL, username), creating the
// per-server map on demand and replacing any previous entry.
func (s *Store) Put(serverURL, username string, credential Credential) {
	server := NormalizeServerURL(serverURL)
	if s.servers[server] == nil {
		s.servers[server] = make(map[string]Credential)
	}
	s.servers[server][username] = credential
}

// Delete removes the credential for (serverURL, username), if present.
func (s *Store) Delete(serverURL, username string) {
	server := NormalizeServerURL(serverURL)
	delete(s.servers[server], username)
	if len(s.servers[server]) == 0 {
		delete(s.servers, server)
	}
}

// Len returns the total number of cached credentials across servers.
func (s *Store) Len() int {
	total := 0
	for _, users := range s.servers {
		total += len(users)
	}
	return total
}

// Persist serializes the whole store and writes it to the vault. The
// write is complete when Persist returns, so a successful login's
// credential survives a crash immediately afterward.
func (s *Store) Persist(storage vault.Storage) error {
	blob, err := json.Marshal(s.servers)
	if err != nil {
		return fmt.Errorf("authstore: marshaling store: %w", err)
	}
	if err := storage.Store(StorageKey, string(blob)); err != nil {
		return fmt.Errorf("authstore: persisting store: %w", err)
	}
	return nil
}

// NormalizeServerURL canonicalizes a homeserver URL to have exactly one
// trailing slash. Idempotent: normalizing an already-normalized URL is
// a no-op, so a URL with or without the slash produces the same store
// key.
func NormalizeServerURL(serverURL string) string {
	return strings.TrimRight(serverURL, "/") + "/"
}
