// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/boxel-foundation/realm/messaging"
)

// LogoutCommand returns the "logout" command: invalidate the cached
// access token on the homeserver and drop it from the vault. The vault
// entry is removed even when the server-side logout fails (the token
// may already be invalid), so logout always leaves a clean local state.
func LogoutCommand() *Command {
	var configPath string
	var homeserverURL string

	return &Command{
		Name:    "logout",
		Summary: "Invalidate and forget the cached credential",
		Usage:   "realm logout [<username>] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("logout", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to config file")
			flags.StringVar(&homeserverURL, "homeserver", "", "homeserver URL")
			return flags
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			env, err := openEnvironment(configPath, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			serverURL, err := env.resolveServer(homeserverURL)
			if err != nil {
				return err
			}
			username, err := env.resolveUsername(args)
			if err != nil {
				return err
			}

			session, err := cachedSession(env, homeserverURL, args, logger)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Logout(ctx); err != nil {
				if messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
					logger.Info("token already invalid on homeserver")
				} else {
					logger.Warn("server-side logout failed, dropping local credential anyway", "error", err)
				}
			}

			if err := env.acquirer.Forget(serverURL, username); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Logged out %s\n", username)
			return nil
		},
	}
}
