// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the realm command-line interface: the command
// tree, flag parsing, help output, and the commands themselves.
//
// Commands receive a context and a structured logger. Human-facing
// output (login confirmations, realm lists) goes to stdout; progress
// and diagnostics go through the logger on stderr.
package cli
