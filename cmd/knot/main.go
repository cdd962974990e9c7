// knot CLI - transcode, inspect and validate object-graph tables, and serve
// them over Connect.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var version = "dev"

// options holds the persistent flags shared by every subcommand.
type options struct {
	dir     string
	verbose int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "knot",
		Short: "Encode object graphs into portable tables",
		Long: `knot reads and writes object-graph tables: a root slot plus a table of
entries, with shared and cyclic references written as {"$ref": n}.

Project settings are read from the nearest knot.toml above --dir.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			commonlog.Configure(opts.verbose, nil)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "directory to search for knot.toml")
	root.PersistentFlags().CountVarP(&opts.verbose, "verbose", "v", "log more (repeatable)")

	root.AddCommand(
		newTranscodeCmd(opts),
		newInspectCmd(opts),
		newValidateCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
