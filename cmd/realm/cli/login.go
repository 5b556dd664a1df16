// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/boxel-foundation/realm/messaging"
)

// LoginCommand returns the "login" command. It acquires a session for
// the given user (cached token, then password login, then email login),
// verifies it via WhoAmI, and leaves the credential in the vault so
// subsequent commands need no password.
func LoginCommand() *Command {
	var configPath string
	var homeserverURL string
	var passwordFile string

	return &Command{
		Name:    "login",
		Summary: "Authenticate against a realm homeserver",
		Description: `Log in to a realm homeserver and cache the credential locally.

After login, commands like "realm whoami" and "realm realms" use the
cached credential transparently. The credential is sealed into the
vault configured by vault.path; run "realm vault init" once before the
first login.

The username may be a Matrix localpart or the email address the account
was registered with. The password can be provided via --password-file
(a path to a file containing the password) or prompted interactively if
--password-file is "-" or omitted.`,
		Usage: "realm login [<username>] [flags]",
		Examples: []Example{
			{
				Description: "Log in interactively (prompts for password)",
				Command:     "realm login alice",
			},
			{
				Description: "Log in with an email-registered account",
				Command:     "realm login alice@example.com --homeserver https://matrix.example",
			},
			{
				Description: "Log in with password from file",
				Command:     "realm login alice --password-file /path/to/password",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to config file")
			flags.StringVar(&homeserverURL, "homeserver", "", "homeserver URL")
			flags.StringVar(&passwordFile, "password-file", "", "path to file containing password, or - to prompt interactively (default: prompt)")
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

			password, err := readPassword(passwordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			ctx, cancel := context.WithTimeout(ctx, env.config.LoginTimeoutDuration())
			defer cancel()

			session, err := env.acquirer.AcquireSession(ctx, serverURL, username, password)
			if err != nil {
				var matrixErr *messaging.MatrixError
				if errors.As(err, &matrixErr) {
					fmt.Fprintf(os.Stderr, "login rejected: %s (HTTP %d): %s\n",
						matrixErr.Code, matrixErr.StatusCode, matrixErr.Message)
					return &ExitError{Code: 1}
				}
				return fmt.Errorf("login failed: %w", err)
			}
			defer session.Close()

			// Verify the session works before reporting success. A stale
			// cached token surfaces here rather than in the next command.
			userID, err := session.WhoAmI(ctx)
			if err != nil {
				if messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
					if forgetErr := env.acquirer.Forget(serverURL, username); forgetErr != nil {
						logger.Warn("failed to drop stale credential", "error", forgetErr)
					}
					return fmt.Errorf("cached credential is no longer valid; run 'realm login %s' again", username)
				}
				return fmt.Errorf("session verification failed: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Logged in as %s\n", userID)
			return nil
		},
	}
}
