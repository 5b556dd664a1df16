// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault provides the durable secret storage that backs the
// credential store. Storage is a keyed blob interface: the credential
// store lives entirely under the single key "auth" as a JSON blob, and
// the vault neither inspects nor interprets what it holds.
//
// Three implementations exist:
//
//   - [FileStorage]: a plain JSON file with owner-only permissions.
//     Suitable when the host already encrypts the disk.
//   - [SealedStorage]: values encrypted at rest with an age identity
//     (lib/sealed), with a BLAKE3 checksum over the ciphertext so that
//     file corruption is detected before a decrypt is attempted.
//   - [Memory]: map-backed, for tests and embedding hosts that supply
//     their own persistence.
package vault

import "sync"

// Storage is durable, keyed blob storage. Get reports absence via the
// second return value rather than an error — an absent key is a normal
// state (first run, no prior logins), while an error means the backing
// store could not be read at all.
type Storage interface {
	// Get returns the value for key, or ok=false if the key has never
	// been stored.
	Get(key string) (value string, ok bool, err error)

	// Store writes the value for key, replacing any previous value.
	// The write is durable when Store returns.
	Store(key, value string) error
}

// Memory is an in-memory Storage for tests and embedding hosts.
// Safe for concurrent use. The zero value is ready to use.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

// Get returns the stored value for key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]
	return value, ok, nil
}

// Store writes the value for key.
func (m *Memory) Store(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}
