// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/boxel-foundation/realm/realm"
)

// RealmsCommand returns the "realms" command: list the realm URLs
// recorded in the user's account data, one per line.
func RealmsCommand() *Command {
	var configPath string
	var homeserverURL string

	return &Command{
		Name:    "realms",
		Summary: "List the realms available to the user",
		Usage:   "realm realms [<username>] [flags]",
		Examples: []Example{
			{
				Description: "List realms for the configured user",
				Command:     "realm realms",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("realms", pflag.ContinueOnError)
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

			realms, err := realm.Realms(ctx, session)
			if err != nil {
				return err
			}
			if len(realms) == 0 {
				fmt.Fprintln(os.Stderr, "no realms configured for this user")
				return nil
			}
			for _, url := range realms {
				fmt.Println(url)
			}
			return nil
		},
	}
}
