// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/boxel-foundation/realm/lib/secret"
)

// readPassword obtains a password for a login command. If passwordFile
// is empty or "-", prompts interactively on the terminal with echo
// disabled. Otherwise, reads from the file path.
func readPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" && passwordFile != "-" {
		return secret.ReadFromPath(passwordFile)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for interactive password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}
