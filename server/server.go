package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/store"
	"github.com/tliron/commonlog"
)

// Server serves the table service over Connect (HTTP/JSON and HTTP/CBOR).
type Server struct {
	tables *TableService
	mux    *http.ServeMux
	http   *http.Server
	log    commonlog.Logger

	shutdownTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store           *store.Store
	indent          string
	shutdownTimeout time.Duration
}

// WithStore backs Put and Get with st. Without it those procedures report
// CodeUnavailable.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// WithIndent sets the indent used when Get transcodes a stored document.
func WithIndent(indent string) ServerOption {
	return func(c *serverConfig) { c.indent = indent }
}

// WithShutdownTimeout bounds how long Serve waits for in-flight calls after
// its context is cancelled.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.shutdownTimeout = d }
}

// New creates a Server that decodes with engine.
func New(engine *codec.Engine, opts ...ServerOption) *Server {
	cfg := &serverConfig{shutdownTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		tables: NewTableService(engine, cfg.store),
		mux:    http.NewServeMux(),
		log:    commonlog.GetLogger("knot.server"),
	}
	s.tables.indent = cfg.indent
	s.tables.register(s.mux)
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.shutdownTimeout = cfg.shutdownTimeout
	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.log.Noticef("table service listening on %s", l.Addr())
	s.log.Infof("  Connect (HTTP/JSON): http://%s%s", l.Addr(), TranscodeProcedure)

	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(l) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe starts the server on addr ("host:port" or ":port").
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
