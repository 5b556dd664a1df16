// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Command realm is the CLI for authenticating against realm
// collaboration servers and inspecting the resulting sessions.
package main
