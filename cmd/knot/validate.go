package main

import (
	"fmt"

	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/scope"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Decode a table and report the first error",
		Long: `Decode a table with the project's engine: built-in types plus messages
from the configured .proto schemas. Constants and deferred names are looked
up in an empty scope, so tables that reference them fail here.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadProject(opts.dir)
			if err != nil {
				return err
			}
			eng, err := newEngine(m, scope.New())
			if err != nil {
				return err
			}
			name, data, err := input(cmd, args)
			if err != nil {
				return err
			}
			f, err := formatFor(format, name, m)
			if err != nil {
				return err
			}

			t, err := codec.UnmarshalTable(f, data)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if _, err := eng.Decode(t); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d entries)\n", name, t.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "input format (default: from file extension, then knot.toml)")
	return cmd
}
