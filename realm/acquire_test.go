// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package realm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boxel-foundation/realm/authstore"
	"github.com/boxel-foundation/realm/lib/secret"
	"github.com/boxel-foundation/realm/lib/testutil"
	"github.com/boxel-foundation/realm/lib/vault"
	"github.com/boxel-foundation/realm/messaging"
)

// fakeHomeserver is an httptest-backed Matrix homeserver that accepts
// password logins for configured localparts and email logins for
// configured addresses. Every issued access token is unique so tests
// can tell live logins apart.
type fakeHomeserver struct {
	server        *httptest.Server
	requests      atomic.Int64
	tokenSerial   atomic.Int64
	passwordUsers map[string]string
	emailUsers    map[string]string
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	fake := &fakeHomeserver{
		passwordUsers: make(map[string]string),
		emailUsers:    make(map[string]string),
	}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeHomeserver) URL() string {
	return f.server.URL
}

func (f *fakeHomeserver) handle(writer http.ResponseWriter, request *http.Request) {
	f.requests.Add(1)

	if request.URL.Path != "/_matrix/client/v3/login" {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Type       string `json:"type"`
		User       string `json:"user"`
		Password   string `json:"password"`
		Identifier *struct {
			Type    string `json:"type"`
			Medium  string `json:"medium"`
			Address string `json:"address"`
		} `json:"identifier"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	var localpart string
	authenticated := false
	if body.Identifier != nil {
		if body.Identifier.Type == "m.id.thirdparty" && body.Identifier.Medium == "email" {
			if password, ok := f.emailUsers[body.Identifier.Address]; ok && password == body.Password {
				localpart = "email-user"
				authenticated = true
			}
		}
	} else if password, ok := f.passwordUsers[body.User]; ok && password == body.Password {
		localpart = body.User
		authenticated = true
	}

	writer.Header().Set("Content-Type", "application/json")
	if !authenticated {
		writer.WriteHeader(http.StatusForbidden)
		json.NewEncoder(writer).Encode(messaging.MatrixError{
			Code:    messaging.ErrCodeForbidden,
			Message: "Invalid password",
		})
		return
	}

	serial := f.tokenSerial.Add(1)
	json.NewEncoder(writer).Encode(messaging.AuthResponse{
		UserID:      fmt.Sprintf("@%s:realm.local", localpart),
		AccessToken: fmt.Sprintf("syt_token_%d", serial),
		DeviceID:    fmt.Sprintf("DEVICE%d", serial),
	})
}

func testPassword(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating password buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func testAcquirer(t *testing.T, storage vault.Storage) *Acquirer {
	t.Helper()
	acquirer, err := NewAcquirer(AcquirerConfig{
		Storage: storage,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewAcquirer failed: %v", err)
	}
	return acquirer
}

// storedCredential reads the persisted store back out of storage and
// returns the credential for the pair, failing if absent.
func storedCredential(t *testing.T, storage vault.Storage, serverURL, username string) authstore.Credential {
	t.Helper()
	store := authstore.Load(storage, slog.New(slog.NewTextHandler(io.Discard, nil)))
	credential, ok := store.Get(serverURL, username)
	if !ok {
		t.Fatalf("no credential stored for %s %s", serverURL, username)
	}
	return credential
}

func TestAcquireSession(t *testing.T) {
	t.Run("password login stores credential", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.passwordUsers["admin"] = "password"
		storage := &vault.Memory{}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		defer session.Close()

		if session.UserID() != "@admin:realm.local" {
			t.Errorf("unexpected user ID: %s", session.UserID())
		}
		if got := fake.requests.Load(); got != 1 {
			t.Errorf("expected 1 homeserver request, got %d", got)
		}

		credential := storedCredential(t, storage, fake.URL(), "admin")
		if credential.AccessToken != session.AccessToken() {
			t.Errorf("stored token %q does not match session token %q", credential.AccessToken, session.AccessToken())
		}
		if credential.UserID != "@admin:realm.local" {
			t.Errorf("unexpected stored user ID: %s", credential.UserID)
		}
		if credential.DeviceID != session.DeviceID() {
			t.Errorf("unexpected stored device ID: %s", credential.DeviceID)
		}
	})

	t.Run("cached credential needs no network", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		storage := &vault.Memory{}

		store := authstore.NewStore()
		store.Put(fake.URL(), "admin", authstore.Credential{
			AccessToken: "syt_cached",
			UserID:      "@admin:realm.local",
			DeviceID:    "DEVICE1",
		})
		if err := store.Persist(storage); err != nil {
			t.Fatalf("seeding store failed: %v", err)
		}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "irrelevant"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		defer session.Close()

		if session.AccessToken() != "syt_cached" {
			t.Errorf("expected cached token, got %q", session.AccessToken())
		}
		if got := fake.requests.Load(); got != 0 {
			t.Errorf("expected 0 homeserver requests, got %d", got)
		}
	})

	t.Run("server URL is normalized for cache lookups", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.passwordUsers["admin"] = "password"
		storage := &vault.Memory{}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL()+"///", "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		session.Close()

		// A second acquisition with a differently-slashed URL hits the
		// same cache entry.
		session, err = acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("second AcquireSession failed: %v", err)
		}
		session.Close()

		if got := fake.requests.Load(); got != 1 {
			t.Errorf("expected 1 homeserver request across both acquisitions, got %d", got)
		}
	})

	t.Run("email fallback after password rejection", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.emailUsers["admin@realm.example"] = "password"
		storage := &vault.Memory{}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin@realm.example", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		defer session.Close()

		if got := fake.requests.Load(); got != 2 {
			t.Errorf("expected 2 homeserver requests (password then email), got %d", got)
		}

		credential := storedCredential(t, storage, fake.URL(), "admin@realm.example")
		if credential.AccessToken != session.AccessToken() {
			t.Errorf("stored token %q does not match session token %q", credential.AccessToken, session.AccessToken())
		}
	})

	t.Run("exhausted tiers return the homeserver error", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		storage := &vault.Memory{}

		acquirer := testAcquirer(t, storage)
		_, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "wrong"))
		if err == nil {
			t.Fatal("expected error when every tier fails")
		}

		var matrixErr *messaging.MatrixError
		if !errors.As(err, &matrixErr) {
			t.Fatalf("expected *messaging.MatrixError in chain, got: %v", err)
		}
		if matrixErr.Code != messaging.ErrCodeForbidden {
			t.Errorf("unexpected errcode: %s", matrixErr.Code)
		}
		if matrixErr.StatusCode != http.StatusForbidden {
			t.Errorf("unexpected HTTP status: %d", matrixErr.StatusCode)
		}

		store := authstore.Load(storage, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if store.Len() != 0 {
			t.Errorf("expected no stored credentials after failed acquisition, got %d", store.Len())
		}
	})

	t.Run("corrupt stored blob falls back to live login", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.passwordUsers["admin"] = "password"
		storage := &vault.Memory{}
		if err := storage.Store(authstore.StorageKey, "{not valid json"); err != nil {
			t.Fatalf("seeding corrupt blob failed: %v", err)
		}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		defer session.Close()

		// The live login repaired the store.
		credential := storedCredential(t, storage, fake.URL(), "admin")
		if credential.AccessToken != session.AccessToken() {
			t.Errorf("stored token %q does not match session token %q", credential.AccessToken, session.AccessToken())
		}
	})

	t.Run("unusable cached credential is replaced", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.passwordUsers["admin"] = "password"
		storage := &vault.Memory{}

		store := authstore.NewStore()
		store.Put(fake.URL(), "admin", authstore.Credential{
			AccessToken: "", // token missing, cannot build a session
			UserID:      "@admin:realm.local",
		})
		if err := store.Persist(storage); err != nil {
			t.Fatalf("seeding store failed: %v", err)
		}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		defer session.Close()

		if got := fake.requests.Load(); got != 1 {
			t.Errorf("expected 1 homeserver request, got %d", got)
		}
		credential := storedCredential(t, storage, fake.URL(), "admin")
		if credential.AccessToken != session.AccessToken() {
			t.Errorf("stale credential was not replaced: stored %q, session %q", credential.AccessToken, session.AccessToken())
		}
	})

	t.Run("persist failure does not fail the acquisition", func(t *testing.T) {
		fake := newFakeHomeserver(t)
		fake.passwordUsers["admin"] = "password"
		storage := &failingStorage{}

		acquirer := testAcquirer(t, storage)
		session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
		if err != nil {
			t.Fatalf("AcquireSession failed: %v", err)
		}
		session.Close()
	})

	t.Run("validation errors", func(t *testing.T) {
		acquirer := testAcquirer(t, &vault.Memory{})
		password := testPassword(t, "password")

		if _, err := acquirer.AcquireSession(context.Background(), "", "admin", password); err == nil {
			t.Fatal("expected error for empty server URL")
		}
		if _, err := acquirer.AcquireSession(context.Background(), "http://localhost:1", "", password); err == nil {
			t.Fatal("expected error for empty username")
		}
		if _, err := acquirer.AcquireSession(context.Background(), "http://localhost:1", "admin", nil); err == nil {
			t.Fatal("expected error for nil password")
		}
	})
}

// failingStorage reads like empty storage and rejects every write.
type failingStorage struct{}

func (f *failingStorage) Get(string) (string, bool, error) { return "", false, nil }
func (f *failingStorage) Store(string, string) error {
	return errors.New("disk full")
}

func TestAcquireSessionConcurrent(t *testing.T) {
	fake := newFakeHomeserver(t)
	fake.passwordUsers["admin"] = "password"
	storage := &vault.Memory{}
	acquirer := testAcquirer(t, storage)

	const workers = 4
	type result struct {
		session *messaging.DirectSession
		err     error
	}
	results := make(chan result, workers)
	for i := 0; i < workers; i++ {
		go func() {
			password, err := secret.NewFromString("password")
			if err != nil {
				results <- result{err: err}
				return
			}
			defer password.Close()
			session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", password)
			results <- result{session: session, err: err}
		}()
	}

	tokens := make(map[string]bool)
	for i := 0; i < workers; i++ {
		r := testutil.RequireReceive(t, results, 10*time.Second, "waiting for acquisition")
		if r.err != nil {
			t.Fatalf("concurrent AcquireSession failed: %v", r.err)
		}
		tokens[r.session.AccessToken()] = true
		r.session.Close()
	}

	// Every acquisition got a working session. The store holds exactly
	// one credential for the pair: whichever login persisted last.
	credential := storedCredential(t, storage, fake.URL(), "admin")
	if !tokens[credential.AccessToken] {
		t.Errorf("stored token %q was not issued to any worker", credential.AccessToken)
	}
	store := authstore.Load(storage, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if store.Len() != 1 {
		t.Errorf("expected exactly 1 stored credential, got %d", store.Len())
	}
}

func TestForget(t *testing.T) {
	fake := newFakeHomeserver(t)
	fake.passwordUsers["admin"] = "password"
	storage := &vault.Memory{}
	acquirer := testAcquirer(t, storage)

	session, err := acquirer.AcquireSession(context.Background(), fake.URL(), "admin", testPassword(t, "password"))
	if err != nil {
		t.Fatalf("AcquireSession failed: %v", err)
	}
	session.Close()

	if err := acquirer.Forget(fake.URL(), "admin"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	store := authstore.Load(storage, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if store.Len() != 0 {
		t.Errorf("expected empty store after Forget, got %d credentials", store.Len())
	}

	// Forgetting an absent pair is a no-op.
	if err := acquirer.Forget(fake.URL(), "nobody"); err != nil {
		t.Fatalf("Forget of absent pair failed: %v", err)
	}
}
