// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

// Root returns the top-level realm command tree.
func Root() *Command {
	return &Command{
		Name:    "realm",
		Summary: "Authenticate against realm collaboration servers",
		Description: `realm manages Matrix credentials for realm collaboration servers.

Log in once with "realm login"; the credential is sealed into a local
vault and reused by every later command until it is logged out or the
homeserver invalidates it.`,
		Subcommands: []*Command{
			LoginCommand(),
			WhoAmICommand(),
			RealmsCommand(),
			LogoutCommand(),
			VaultCommand(),
			VersionCommand(),
		},
	}
}
