// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data:
// realm passwords, Matrix access tokens, and age identity keys.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [NewFromString] -- convenience wrapper for string sources
//   - [ReadFromPath] -- reads a secret from a file or stdin
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries such as JSON encoding
// and Authorization headers). After Close, any access panics. Close is
// idempotent.
//
// Depends on golang.org/x/sys/unix. No other realm-internal
// dependencies. Imported by messaging (access tokens), lib/sealed (age
// identity keys), and the CLI (password prompts).
package secret
