// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/boxel-foundation/realm/lib/config"
	"github.com/boxel-foundation/realm/lib/vault"
)

// VaultCommand returns the "vault" command group.
func VaultCommand() *Command {
	return &Command{
		Name:    "vault",
		Summary: "Manage the local credential vault",
		Subcommands: []*Command{
			vaultInitCommand(),
		},
	}
}

// vaultInitCommand generates the age identity that seals the vault.
// Refuses to overwrite an existing identity: losing it would make the
// vault unreadable, and regenerating over live credentials is always a
// mistake.
func vaultInitCommand() *Command {
	var configPath string

	return &Command{
		Name:    "init",
		Summary: "Generate the vault identity",
		Description: `Create the age identity file used to seal cached credentials.

The identity file is written with mode 0600. Anyone with this file can
read every credential in the vault; treat it like a private SSH key.`,
		Usage: "realm vault init [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to config file")
			return flags
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			var cfg *config.Config
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			publicKey, err := vault.WriteIdentityFile(cfg.Vault.IdentityFile)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Vault identity written to %s\n", cfg.Vault.IdentityFile)
			fmt.Fprintf(os.Stderr, "Public key: %s\n", publicKey)
			return nil
		},
	}
}
