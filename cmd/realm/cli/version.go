// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Version is the release version, overridable at build time:
//
//	go build -ldflags "-X github.com/boxel-foundation/realm/cmd/realm/cli.Version=v1.2.3"
var Version = "dev"

// VersionCommand returns the "version" command.
func VersionCommand() *Command {
	return &Command{
		Name:    "version",
		Summary: "Print the realm version",
		Usage:   "realm version",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			version := Version
			if version == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
					version = info.Main.Version
				}
			}
			fmt.Println(version)
			return nil
		},
	}
}
