// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package realm acquires authenticated Matrix sessions against realm
// servers, caching credentials across runs so that interactive logins
// are rare.
//
// The entry point is Acquirer.AcquireSession, which tries three tiers
// in order: a cached access token, a password login, and an email
// third-party login. A successful live login writes its credential
// back to the store before returning, so the next acquisition for the
// same server/username pair is served from cache with no network
// traffic.
package realm
