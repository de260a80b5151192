// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/tourbook/tourbook/internal/config"
	"github.com/tourbook/tourbook/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Tourbook CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tourbook",
		Short: "Tourbook - user accounts for the tour booking site",
		Long: `Tourbook serves the user account API of the tour booking site:
signup, login, session tokens, password resets and role-based access.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/tourbook/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := cmd.Root().Version
			if v == "" {
				v = version
			}
			cmd.Println("tourbook " + v)
		},
	}
}

// loadConfig reads the layered configuration for cmd. Without --config the
// XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.ConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}
