// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Veranda CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veranda",
		Short: "Veranda - an internal developer portal",
		Long: `Veranda is an internal developer portal whose pages are extended by
sandboxed plugins: JavaScript bundles loaded at runtime, rendered through a
containment shell, and given scoped access to their own backends.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}
