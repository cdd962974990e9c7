package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/codec/wire"
	"github.com/chazu/knot/store"
	"github.com/tliron/commonlog"
)

// ServiceName is the fully-qualified name of the table service.
const ServiceName = "knot.v1.TableService"

// Procedure paths served by the table service.
const (
	TranscodeProcedure = "/" + ServiceName + "/Transcode"
	InspectProcedure   = "/" + ServiceName + "/Inspect"
	ValidateProcedure  = "/" + ServiceName + "/Validate"
	PutProcedure       = "/" + ServiceName + "/Put"
	GetProcedure       = "/" + ServiceName + "/Get"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// TranscodeRequest converts Document between formats. Formats are given by
// name ("json") or MIME type ("application/cbor") here and in every other
// request.
type TranscodeRequest struct {
	Document []byte `json:"document"`
	From     string `json:"from"`
	To       string `json:"to"`
	Indent   string `json:"indent,omitempty"`
}

type TranscodeResponse struct {
	Document    []byte `json:"document"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
}

type InspectRequest struct {
	Document []byte `json:"document"`
	Format   string `json:"format"`
}

type InspectResponse struct {
	Entries int            `json:"entries"`
	Inline  int            `json:"inline"`
	Refs    int            `json:"refs"`
	Atoms   int            `json:"atoms"`
	Types   map[string]int `json:"types"`
}

type ValidateRequest struct {
	Document []byte `json:"document"`
	Format   string `json:"format"`
}

// ValidateResponse reports whether a document decodes with the server's
// engine. Kind is one of "unknown_type", "corrupt_table",
// "unresolved_symbol", "depth_exceeded" or "error".
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Path  string `json:"path,omitempty"`
}

type PutRequest struct {
	ID       string `json:"id,omitempty"`
	Document []byte `json:"document"`
	Format   string `json:"format"`
}

type PutResponse struct {
	ID string `json:"id"`
}

// GetRequest fetches a stored document. A non-empty Format transcodes it on
// the way out.
type GetRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
}

type GetResponse struct {
	ID       string `json:"id"`
	Format   string `json:"format"`
	Document []byte `json:"document"`
	Created  int64  `json:"created"` // unix milliseconds
}

// ---------------------------------------------------------------------------
// TableService
// ---------------------------------------------------------------------------

// TableService implements knot.v1.TableService over an engine and a store.
type TableService struct {
	engine *codec.Engine
	store  *store.Store
	indent string
	log    commonlog.Logger
}

// NewTableService creates a TableService. st may be nil, in which case Put
// and Get report CodeUnavailable.
func NewTableService(engine *codec.Engine, st *store.Store) *TableService {
	return &TableService{
		engine: engine,
		store:  st,
		log:    commonlog.GetLogger("knot.server"),
	}
}

// Transcode rewrites a document in another wire format. The table is
// checked for shape but not decoded, so it needs no registered types.
func (s *TableService) Transcode(
	ctx context.Context,
	req *connect.Request[TranscodeRequest],
) (*connect.Response[TranscodeResponse], error) {
	from, err := s.formatFor(req.Msg.From)
	if err != nil {
		return nil, err
	}
	to, err := s.formatFor(req.Msg.To)
	if err != nil {
		return nil, err
	}
	t, err := codec.UnmarshalTable(from, req.Msg.Document)
	if err != nil {
		return nil, connectError(err)
	}
	out, err := codec.MarshalTable(to, t, req.Msg.Indent)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.log.Debugf("transcoded %d bytes %s -> %d bytes %s", len(req.Msg.Document), from.Name(), len(out), to.Name())
	return connect.NewResponse(&TranscodeResponse{
		Document:    out,
		Format:      to.Name(),
		ContentType: to.ContentType(),
	}), nil
}

// Inspect returns table statistics for a document.
func (s *TableService) Inspect(
	ctx context.Context,
	req *connect.Request[InspectRequest],
) (*connect.Response[InspectResponse], error) {
	f, err := s.formatFor(req.Msg.Format)
	if err != nil {
		return nil, err
	}
	t, err := codec.UnmarshalTable(f, req.Msg.Document)
	if err != nil {
		return nil, connectError(err)
	}
	st := t.Stats()
	return connect.NewResponse(&InspectResponse{
		Entries: st.Entries,
		Inline:  st.Inline,
		Refs:    st.Refs,
		Atoms:   st.Atoms,
		Types:   st.Types,
	}), nil
}

// Validate decodes a document with the server's engine. A document that
// fails to decode is a successful call with Valid false.
func (s *TableService) Validate(
	ctx context.Context,
	req *connect.Request[ValidateRequest],
) (*connect.Response[ValidateResponse], error) {
	f, err := s.formatFor(req.Msg.Format)
	if err != nil {
		return nil, err
	}
	res := &ValidateResponse{Valid: true}
	if err := s.decode(f, req.Msg.Document); err != nil {
		res = &ValidateResponse{Error: err.Error(), Kind: errorKind(err), Path: errorPath(err)}
	}
	return connect.NewResponse(res), nil
}

// Put validates a document and stores it.
func (s *TableService) Put(
	ctx context.Context,
	req *connect.Request[PutRequest],
) (*connect.Response[PutResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("no document store configured"))
	}
	f, err := s.formatFor(req.Msg.Format)
	if err != nil {
		return nil, err
	}
	if err := s.decode(f, req.Msg.Document); err != nil {
		return nil, connectError(err)
	}
	id, err := s.store.Put(ctx, store.Document{
		ID:     req.Msg.ID,
		Format: f.Name(),
		Data:   req.Msg.Document,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.log.Infof("stored document %s (%s, %d bytes)", id, f.Name(), len(req.Msg.Document))
	return connect.NewResponse(&PutResponse{ID: id}), nil
}

// Get returns a stored document, transcoded when the request names a format.
func (s *TableService) Get(
	ctx context.Context,
	req *connect.Request[GetRequest],
) (*connect.Response[GetResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("no document store configured"))
	}
	if req.Msg.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("id is required"))
	}
	doc, err := s.store.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, connectError(err)
	}

	res := &GetResponse{
		ID:       doc.ID,
		Format:   doc.Format,
		Document: doc.Data,
		Created:  doc.Created.UnixMilli(),
	}
	if req.Msg.Format != "" && req.Msg.Format != doc.Format {
		from, err := s.formatFor(doc.Format)
		if err != nil {
			return nil, err
		}
		to, err := s.formatFor(req.Msg.Format)
		if err != nil {
			return nil, err
		}
		t, err := codec.UnmarshalTable(from, doc.Data)
		if err != nil {
			return nil, connect.NewError(connect.CodeDataLoss, err)
		}
		if res.Document, err = codec.MarshalTable(to, t, s.indent); err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		res.Format = to.Name()
	}
	return connect.NewResponse(res), nil
}

// formatFor looks up a wire format by name or MIME type. The empty name
// means the engine's format.
func (s *TableService) formatFor(name string) (wire.Format, error) {
	if name == "" {
		return s.engine.Format(), nil
	}
	if f := wire.Default.ByContentType(name); f != nil {
		return f, nil
	}
	f, err := wire.Lookup(name)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return f, nil
}

func (s *TableService) decode(f wire.Format, data []byte) error {
	t, err := codec.UnmarshalTable(f, data)
	if err != nil {
		return err
	}
	_, err = s.engine.Decode(t)
	return err
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func connectError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, codec.ErrUnresolvedSymbol):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, codec.ErrCorruptTable),
		errors.Is(err, codec.ErrUnknownType),
		errors.Is(err, codec.ErrDepthExceeded):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, codec.ErrUnresolvedSymbol):
		return "unresolved_symbol"
	case errors.Is(err, codec.ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, codec.ErrCorruptTable):
		return "corrupt_table"
	default:
		return "error"
	}
}

func errorPath(err error) string {
	var ute *codec.UnknownTypeError
	if errors.As(err, &ute) {
		return ute.Path.String()
	}
	var use *codec.UnresolvedSymbolError
	if errors.As(err, &use) {
		return use.Path.String()
	}
	var cte *codec.CorruptTableError
	if errors.As(err, &cte) {
		return cte.Path.String()
	}
	return ""
}

// register mounts every procedure on mux.
func (s *TableService) register(mux *http.ServeMux) {
	opts := handlerOptions()
	mux.Handle(TranscodeProcedure, connect.NewUnaryHandler(TranscodeProcedure, s.Transcode, opts...))
	mux.Handle(InspectProcedure, connect.NewUnaryHandler(InspectProcedure, s.Inspect, opts...))
	mux.Handle(ValidateProcedure, connect.NewUnaryHandler(ValidateProcedure, s.Validate, opts...))
	mux.Handle(PutProcedure, connect.NewUnaryHandler(PutProcedure, s.Put, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, s.Get, opts...))
}
