// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/boxel-foundation/realm/authstore"
	"github.com/boxel-foundation/realm/messaging"
)

// WhoAmICommand returns the "whoami" command: resolve the cached
// credential for a user and confirm it with the homeserver. Unlike
// login, whoami never prompts; a missing credential is an error with a
// hint to run login.
func WhoAmICommand() *Command {
	var configPath string
	var homeserverURL string

	return &Command{
		Name:    "whoami",
		Summary: "Show the identity behind the cached credential",
		Usage:   "realm whoami [<username>] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
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

			session, err := cachedSession(env, homeserverURL, args, logger)
			if err != nil {
				return err
			}
			defer session.Close()

			userID, err := session.WhoAmI(ctx)
			if err != nil {
				return fmt.Errorf("whoami failed: %w", err)
			}
			fmt.Println(userID)
			return nil
		},
	}
}

// cachedSession builds a session from the stored credential for the
// resolved server/username pair. No live login is attempted.
func cachedSession(env *environment, homeserverFlag string, args []string, logger *slog.Logger) (*messaging.DirectSession, error) {
	serverURL, err := env.resolveServer(homeserverFlag)
	if err != nil {
		return nil, err
	}
	username, err := env.resolveUsername(args)
	if err != nil {
		return nil, err
	}

	store := authstore.Load(env.storage, logger)
	credential, ok := store.Get(serverURL, username)
	if !ok {
		return nil, fmt.Errorf("no cached credential for %s on %s (run 'realm login %s' first)", username, serverURL, username)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: serverURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return client.SessionFromToken(credential.UserID, credential.DeviceID, credential.AccessToken)
}
