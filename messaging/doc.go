// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a minimal Matrix client-server API client for
// realm authentication. It covers the login surface a realm client
// needs — password login, third-party (email) login, session
// construction from a cached token — plus the few authenticated calls
// the CLI uses (whoami, account data, logout). It does not implement
// rooms, sync, or media; realm content traffic goes through the realm
// server itself, not the homeserver.
//
// [Client] is the unauthenticated entry point: it holds the homeserver
// URL and HTTP transport. [DirectSession] wraps a Client with an access
// token for authenticated calls; the token is held in a secret.Buffer
// (mmap-backed, locked against swap, excluded from core dumps) and the
// caller must Close the session when done.
//
// Homeserver error responses surface as [*MatrixError], which carries
// the server's errcode, message, and the HTTP status code. Callers use
// errors.As to inspect them.
package messaging
