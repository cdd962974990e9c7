package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/knot/scope"
	"github.com/chazu/knot/server"
	"github.com/chazu/knot/store"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the table service (Connect over HTTP, JSON or CBOR)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadProject(opts.dir)
			if err != nil {
				return err
			}
			eng, err := newEngine(m, scope.New())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = m.Server.Addr
			}
			if dbPath == "" {
				dbPath = m.StorePath()
			}

			var storeOpts []store.Option
			if m.Store.CacheTTL.Duration != 0 {
				storeOpts = append(storeOpts, store.WithCacheTTL(m.Store.CacheTTL.Duration))
			}
			st, err := store.Open(dbPath, storeOpts...)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(eng, server.WithStore(st), server.WithIndent(m.Codec.Indent))
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from knot.toml)")
	cmd.Flags().StringVar(&dbPath, "db", "", "document database (default from knot.toml)")
	return cmd
}
