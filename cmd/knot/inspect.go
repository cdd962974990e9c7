package main

import (
	"fmt"

	"github.com/chazu/knot/codec"
	"github.com/spf13/cobra"
)

func newInspectCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Print table statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadProject(opts.dir)
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

			st := t.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "format:  %s\n", f.Name())
			fmt.Fprintf(w, "entries: %d\n", st.Entries)
			fmt.Fprintf(w, "inline:  %d\n", st.Inline)
			fmt.Fprintf(w, "refs:    %d\n", st.Refs)
			fmt.Fprintf(w, "atoms:   %d\n", st.Atoms)
			if len(st.Types) > 0 {
				fmt.Fprintln(w, "types:")
				for _, n := range st.TypeNames() {
					fmt.Fprintf(w, "  %-12s %d\n", n, st.Types[n])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "input format (default: from file extension, then knot.toml)")
	return cmd
}
