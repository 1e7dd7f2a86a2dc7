// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/veranda-dev/veranda/internal/plugin"
)

// newValidateCmd creates the validate subcommand. It checks plugin record
// files before they are pushed to a registry.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <record.yaml>...",
		Short: "Validate plugin record files",
		Long: `Validate one or more plugin record files against the record schema and
the runtime's id and version rules.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := validateRecordFile(path); err != nil {
					cmd.PrintErrf("%s: %s\n", path, plugin.FormatSchemaError(err))
					failed++
					continue
				}
				cmd.Printf("%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d record(s) invalid", failed, len(args))
			}
			return nil
		},
	}
}

// validateRecordFile runs both schema and semantic validation on one file.
func validateRecordFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := plugin.ValidateSchema(data); err != nil {
		return err
	}

	var md plugin.Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return err
	}
	return md.Validate()
}
