// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/boxel-foundation/realm/lib/config"
	"github.com/boxel-foundation/realm/lib/vault"
	"github.com/boxel-foundation/realm/realm"
)

// environment bundles the loaded configuration, the opened credential
// vault, and the session acquirer built on top of it. Commands that
// talk to a homeserver open one of these, do their work, and Close it.
type environment struct {
	config   *config.Config
	storage  *vault.SealedStorage
	acquirer *realm.Acquirer
}

// openEnvironment loads the configuration (from configPath if set,
// otherwise REALM_CONFIG or defaults) and opens the sealed vault. The
// vault identity must exist; a missing identity gets a hint to run
// "realm vault init".
func openEnvironment(configPath string, logger *slog.Logger) (*environment, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := os.Stat(cfg.Vault.IdentityFile); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("vault identity %s does not exist (run 'realm vault init' first)", cfg.Vault.IdentityFile)
		}
		return nil, fmt.Errorf("checking vault identity: %w", err)
	}

	storage, err := vault.NewSealedStorage(cfg.Vault.Path, cfg.Vault.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	acquirer, err := realm.NewAcquirer(realm.AcquirerConfig{
		Storage: storage,
		Logger:  logger,
	})
	if err != nil {
		storage.Close()
		return nil, err
	}

	return &environment{config: cfg, storage: storage, acquirer: acquirer}, nil
}

func (e *environment) Close() error {
	return e.storage.Close()
}

// resolveServer returns the homeserver URL from the flag when given,
// falling back to the config file.
func (e *environment) resolveServer(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if e.config.Homeserver.URL != "" {
		return e.config.Homeserver.URL, nil
	}
	return "", fmt.Errorf("no homeserver configured (use --homeserver or set homeserver.url in the config file)")
}

// resolveUsername returns the username from the positional argument
// when given, falling back to the config file.
func (e *environment) resolveUsername(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("unexpected argument: %s", args[1])
	}
	if len(args) == 1 {
		return args[0], nil
	}
	if e.config.Homeserver.Username != "" {
		return e.config.Homeserver.Username, nil
	}
	return "", fmt.Errorf("no username given (pass it as an argument or set homeserver.username in the config file)")
}
