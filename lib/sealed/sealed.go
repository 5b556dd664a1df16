// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for the realm credential store.
// It wraps filippo.io/age for the specific operations the vault needs:
// generate an identity keypair, encrypt the serialized store to the
// vault's recipient, decrypt it with the private key.
//
// Ciphertext is base64-encoded for storage inside the vault's JSON
// envelope. The base64 encoding is handled internally — callers pass
// plaintext []byte in and get base64 strings out (and vice versa for
// decryption).
//
// Private keys and decrypted plaintext are returned as *secret.Buffer
// values, which are backed by mmap memory outside the Go heap (locked
// against swap, excluded from core dumps, zeroed on close).
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/boxel-foundation/realm/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key is stored in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps). The public key is a plain string (safe to write to disk or
// logs).
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format,
	// stored in mmap memory outside the Go heap. Must never be logged
	// or included in CLI arguments.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// Close releases the private key memory (zeros, unlocks, unmaps).
// Idempotent — safe to call multiple times.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair. The private key is
// returned in a secret.Buffer.
//
// The caller must call Close on the returned Keypair when done.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// Move the private key string into mmap-backed memory immediately.
	// The heap string is GC'd eventually — unavoidable since age returns
	// string-valued identities. The mmap buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt encrypts plaintext to one or more recipients specified by their
// age public key strings (age1... format). Returns the ciphertext as a
// standard base64-encoded string suitable for storage in the vault's JSON
// envelope.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertextBuffer bytes.Buffer
	writer, err := age.Encrypt(&ciphertextBuffer, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertextBuffer.Bytes()), nil
}

// Decrypt decrypts a base64-encoded ciphertext string using the given
// private key. Returns the plaintext in a secret.Buffer (mmap-backed,
// zeroed on close).
//
// The private key is borrowed (read via .String() to parse the age
// identity) and is NOT closed by this function.
//
// The caller must call Close on the returned buffer when the plaintext is
// no longer needed.
func Decrypt(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	// Convert the buffer to a string at the API boundary —
	// age.ParseX25519Identity requires a string. The heap copy is brief.
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}

	if len(plaintext) == 0 {
		// age can produce empty plaintext (encrypted empty input).
		buffer, err := secret.New(1)
		if err != nil {
			return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
		}
		return buffer, nil
	}

	// Move the decrypted plaintext into mmap-backed memory immediately.
	// NewFromBytes zeros the heap copy.
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// Recipient derives the age public key (age1... format) for a private
// key stored in a secret.Buffer. The vault uses this to encrypt new
// store contents to the same identity it decrypts with.
func Recipient(privateKey *secret.Buffer) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", fmt.Errorf("invalid age private key: %w", err)
	}
	return identity.Recipient().String(), nil
}

// ParsePrivateKey validates an age private key stored in a secret.Buffer.
// Returns an error if the key is not a valid age x25519 private key.
// Useful for validating an identity file before attempting a decrypt.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
