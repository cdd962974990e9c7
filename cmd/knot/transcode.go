package main

import (
	"fmt"
	"os"

	"github.com/chazu/knot/codec"
	"github.com/spf13/cobra"
)

func newTranscodeCmd(opts *options) *cobra.Command {
	var from, to, out, indent string

	cmd := &cobra.Command{
		Use:   "transcode [file]",
		Short: "Rewrite a table in another wire format",
		Long: `Rewrite a table in another wire format. The table's shape is checked but
its entries are not decoded, so no types need to be registered.

Examples:
  knot transcode --to cbor graph.json -o graph.cbor
  cat graph.yaml | knot transcode --from yaml --to json --indent "  "`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadProject(opts.dir)
			if err != nil {
				return err
			}
			name, data, err := input(cmd, args)
			if err != nil {
				return err
			}
			src, err := formatFor(from, name, m)
			if err != nil {
				return err
			}
			dst, err := formatFor(to, out, m)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("indent") {
				indent = m.Codec.Indent
			}

			t, err := codec.UnmarshalTable(src, data)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			res, err := codec.MarshalTable(dst, t, indent)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(res)
				return err
			}
			return os.WriteFile(out, res, 0o644)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "input format (default: from file extension, then knot.toml)")
	cmd.Flags().StringVar(&to, "to", "", "output format (default: from -o extension, then knot.toml)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&indent, "indent", "", "indent for text formats")
	return cmd
}
