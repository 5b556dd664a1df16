// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/boxel-foundation/realm/lib/sealed"
	"github.com/boxel-foundation/realm/lib/secret"
)

// SealedStorage persists values encrypted at rest with an age identity.
// The backing file is a JSON envelope:
//
//	{"checksum": "<blake3 hex of ciphertext>", "ciphertext": "<base64 age>"}
//
// where the plaintext is the JSON key/value map. The checksum detects
// file corruption (truncated writes, bit rot) before a decrypt is
// attempted, so a damaged vault reads as an error rather than garbage.
//
// The caller must call Close when the storage is no longer needed to
// release the identity key memory.
type SealedStorage struct {
	path       string
	privateKey *secret.Buffer
	recipient  string
}

// sealedEnvelope is the on-disk representation of a sealed vault file.
type sealedEnvelope struct {
	Checksum   string `json:"checksum"`
	Ciphertext string `json:"ciphertext"`
}

// NewSealedStorage creates a SealedStorage backed by the given file
// path, using the age identity at identityPath (a file containing an
// AGE-SECRET-KEY-1... line, as written by WriteIdentityFile).
func NewSealedStorage(path, identityPath string) (*SealedStorage, error) {
	privateKey, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("vault: reading identity %s: %w", identityPath, err)
	}

	recipient, err := sealed.Recipient(privateKey)
	if err != nil {
		privateKey.Close()
		return nil, fmt.Errorf("vault: identity %s: %w", identityPath, err)
	}

	return &SealedStorage{
		path:       path,
		privateKey: privateKey,
		recipient:  recipient,
	}, nil
}

// Close releases the identity key memory. Idempotent.
func (s *SealedStorage) Close() error {
	if s.privateKey != nil {
		return s.privateKey.Close()
	}
	return nil
}

// Get returns the value for key, decrypting the vault file. A checksum
// mismatch or decrypt failure is an error — the caller decides whether
// to treat a corrupt vault as empty.
func (s *SealedStorage) Get(key string) (string, bool, error) {
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Store writes the value for key, re-encrypting and rewriting the whole
// vault file. The write is complete when Store returns.
func (s *SealedStorage) Store(key, value string) error {
	values, err := s.read()
	if err != nil {
		// A corrupt vault must not block writing a fresh credential.
		// Start over with an empty map; the old file is overwritten.
		values = make(map[string]string)
	}
	values[key] = value

	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("vault: marshaling values: %w", err)
	}

	ciphertext, err := sealed.Encrypt(plaintext, []string{s.recipient})
	secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("vault: encrypting %s: %w", s.path, err)
	}

	envelope := sealedEnvelope{
		Checksum:   checksum(ciphertext),
		Ciphertext: ciphertext,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshaling envelope: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("vault: creating directory %s: %w", directory, err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("vault: writing %s: %w", s.path, err)
	}
	return nil
}

// read loads and decrypts the key/value map. A missing file yields an
// empty map; a corrupt or undecryptable file is an error.
func (s *SealedStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("vault: reading %s: %w", s.path, err)
	}

	var envelope sealedEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("vault: parsing %s: %w", s.path, err)
	}

	if got := checksum(envelope.Ciphertext); got != envelope.Checksum {
		return nil, fmt.Errorf("vault: %s checksum mismatch (file corrupt?)", s.path)
	}

	plaintext, err := sealed.Decrypt(envelope.Ciphertext, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypting %s: %w", s.path, err)
	}
	defer plaintext.Close()

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext.Bytes(), &values); err != nil {
		return nil, fmt.Errorf("vault: parsing decrypted %s: %w", s.path, err)
	}
	return values, nil
}

// checksum computes the hex-encoded BLAKE3 digest of the ciphertext.
func checksum(ciphertext string) string {
	digest := blake3.Sum256([]byte(ciphertext))
	return hex.EncodeToString(digest[:])
}

// WriteIdentityFile generates a new age identity and writes the private
// key to path with mode 0600 (parent directory 0700). Returns the
// corresponding public key. Fails if the file already exists — an
// existing identity guards an existing vault, and overwriting it would
// make that vault permanently unreadable.
func WriteIdentityFile(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("vault: identity file %s already exists", path)
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	defer keypair.Close()

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return "", fmt.Errorf("vault: creating directory %s: %w", directory, err)
	}

	// The private key leaves protected memory here by necessity — it
	// has to reach the disk. The heap copy is zeroed after the write.
	// The file is 0600 in a 0700 directory.
	data := make([]byte, 0, keypair.PrivateKey.Len()+1)
	data = append(data, keypair.PrivateKey.Bytes()...)
	data = append(data, '\n')
	err = os.WriteFile(path, data, 0600)
	secret.Zero(data)
	if err != nil {
		return "", fmt.Errorf("vault: writing identity %s: %w", path, err)
	}

	return keypair.PublicKey, nil
}
