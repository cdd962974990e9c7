package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/codec/wire"
	"github.com/chazu/knot/graph"
	"github.com/chazu/knot/scope"
	"github.com/chazu/knot/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test infrastructure
// ---------------------------------------------------------------------------

type testEnv struct {
	Engine *codec.Engine
	Scope  *scope.Scope
	Store  *store.Store
	Server *httptest.Server
}

func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	s := scope.New()
	eng, err := codec.New(codec.WithScope(s), codec.WithDeferred("lazy.target"))
	require.NoError(t, err)

	env := &testEnv{Engine: eng, Scope: s}
	var opts []ServerOption
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "docs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		env.Store = st
		opts = append(opts, WithStore(st))
	}
	env.Server = httptest.NewServer(New(eng, opts...).Handler())
	t.Cleanup(env.Server.Close)
	return env
}

func client[Req, Res any](env *testEnv, procedure string, c connect.Codec) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](env.Server.Client(), env.Server.URL+procedure, connect.WithCodec(c))
}

func bg() context.Context {
	return context.Background()
}

// sampleDocument builds a small cyclic graph and marshals it as JSON.
func sampleDocument(t *testing.T, eng *codec.Engine) (*graph.Object, []byte) {
	t.Helper()
	root := graph.NewObjectFrom("name", "root", "ratio", 0.5)
	child := graph.NewObjectFrom("parent", root)
	root.Set("child", child)
	root.Set("again", child)
	data, err := eng.Marshal(root)
	require.NoError(t, err)
	return root, data
}

// ---------------------------------------------------------------------------
// Transcode / Inspect
// ---------------------------------------------------------------------------

func TestTranscode_JSONToCBOROverCBOR(t *testing.T) {
	env := newTestEnv(t, false)
	root, doc := sampleDocument(t, env.Engine)

	c := client[TranscodeRequest, TranscodeResponse](env, TranscodeProcedure, CBORCodec())
	resp, err := c.CallUnary(bg(), connect.NewRequest(&TranscodeRequest{Document: doc, From: "json", To: "cbor"}))
	require.NoError(t, err)
	assert.Equal(t, "cbor", resp.Msg.Format)
	assert.Equal(t, "application/cbor", resp.Msg.ContentType)

	tab, err := codec.UnmarshalTable(wire.CBOR(), resp.Msg.Document)
	require.NoError(t, err)
	back, err := env.Engine.Decode(tab)
	require.NoError(t, err)
	assert.True(t, graph.Equal(root, back), "transcoded document decodes to a different graph")
}

func TestTranscode_ContentTypeNames(t *testing.T) {
	env := newTestEnv(t, false)
	root, doc := sampleDocument(t, env.Engine)

	c := client[TranscodeRequest, TranscodeResponse](env, TranscodeProcedure, JSONCodec())
	resp, err := c.CallUnary(bg(), connect.NewRequest(&TranscodeRequest{
		Document: doc,
		From:     "application/json",
		To:       "application/yaml",
	}))
	require.NoError(t, err)
	assert.Equal(t, "yaml", resp.Msg.Format)

	tab, err := codec.UnmarshalTable(wire.YAML(), resp.Msg.Document)
	require.NoError(t, err)
	back, err := env.Engine.Decode(tab)
	require.NoError(t, err)
	assert.True(t, graph.Equal(root, back))
}

func TestTranscode_UnknownFormat(t *testing.T) {
	env := newTestEnv(t, false)
	_, doc := sampleDocument(t, env.Engine)

	c := client[TranscodeRequest, TranscodeResponse](env, TranscodeProcedure, JSONCodec())
	_, err := c.CallUnary(bg(), connect.NewRequest(&TranscodeRequest{Document: doc, From: "json", To: "xml"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestTranscode_Garbage(t *testing.T) {
	env := newTestEnv(t, false)
	c := client[TranscodeRequest, TranscodeResponse](env, TranscodeProcedure, JSONCodec())
	_, err := c.CallUnary(bg(), connect.NewRequest(&TranscodeRequest{Document: []byte("{not json"), From: "json", To: "yaml"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestInspect(t *testing.T) {
	env := newTestEnv(t, false)
	_, doc := sampleDocument(t, env.Engine)

	c := client[InspectRequest, InspectResponse](env, InspectProcedure, JSONCodec())
	resp, err := c.CallUnary(bg(), connect.NewRequest(&InspectRequest{Document: doc}))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Msg.Entries)
	assert.Equal(t, 2, resp.Msg.Types["Object"])
	// root -> Ref 0, child and again -> Ref 1, parent -> Ref 0
	assert.Equal(t, 4, resp.Msg.Refs)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	env := newTestEnv(t, false)
	_, doc := sampleDocument(t, env.Engine)
	c := client[ValidateRequest, ValidateResponse](env, ValidateProcedure, JSONCodec())

	resp, err := c.CallUnary(bg(), connect.NewRequest(&ValidateRequest{Document: doc, Format: "json"}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Valid, resp.Msg.Error)

	unknown := []byte(`{"root":{"$ref":0},"table":[{"$type":"Widget"}]}`)
	resp, err = c.CallUnary(bg(), connect.NewRequest(&ValidateRequest{Document: unknown}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Valid)
	assert.Equal(t, "unknown_type", resp.Msg.Kind)
	assert.Equal(t, "$", resp.Msg.Path)

	badRef := []byte(`{"root":{"$ref":3},"table":[]}`)
	resp, err = c.CallUnary(bg(), connect.NewRequest(&ValidateRequest{Document: badRef}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Valid)
	assert.Equal(t, "corrupt_table", resp.Msg.Kind)
}

func TestValidate_UnboundDeferredSymbol(t *testing.T) {
	env := newTestEnv(t, false)
	target := graph.NewObjectFrom("v", 1)
	require.NoError(t, env.Scope.Bind("lazy.target", target))

	doc, err := env.Engine.Marshal(graph.NewObjectFrom("lazy", target))
	require.NoError(t, err)
	require.True(t, env.Scope.Unbind("lazy.target"))

	c := client[ValidateRequest, ValidateResponse](env, ValidateProcedure, JSONCodec())
	resp, err := c.CallUnary(bg(), connect.NewRequest(&ValidateRequest{Document: doc}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Valid)
	assert.Equal(t, "unresolved_symbol", resp.Msg.Kind)
	assert.Equal(t, "$.lazy", resp.Msg.Path)
}

// ---------------------------------------------------------------------------
// Put / Get
// ---------------------------------------------------------------------------

func TestPutGet(t *testing.T) {
	env := newTestEnv(t, true)
	root, doc := sampleDocument(t, env.Engine)

	put := client[PutRequest, PutResponse](env, PutProcedure, CBORCodec())
	putResp, err := put.CallUnary(bg(), connect.NewRequest(&PutRequest{Document: doc, Format: "json"}))
	require.NoError(t, err)
	require.NotEmpty(t, putResp.Msg.ID)

	get := client[GetRequest, GetResponse](env, GetProcedure, JSONCodec())
	getResp, err := get.CallUnary(bg(), connect.NewRequest(&GetRequest{ID: putResp.Msg.ID}))
	require.NoError(t, err)
	assert.Equal(t, "json", getResp.Msg.Format)
	assert.Equal(t, doc, getResp.Msg.Document)
	assert.WithinDuration(t, time.Now(), time.UnixMilli(getResp.Msg.Created), time.Minute)

	getResp, err = get.CallUnary(bg(), connect.NewRequest(&GetRequest{ID: putResp.Msg.ID, Format: "yaml"}))
	require.NoError(t, err)
	assert.Equal(t, "yaml", getResp.Msg.Format)
	tab, err := codec.UnmarshalTable(wire.YAML(), getResp.Msg.Document)
	require.NoError(t, err)
	back, err := env.Engine.Decode(tab)
	require.NoError(t, err)
	assert.True(t, graph.Equal(root, back))
}

func TestPut_RejectsInvalidDocument(t *testing.T) {
	env := newTestEnv(t, true)
	put := client[PutRequest, PutResponse](env, PutProcedure, JSONCodec())
	_, err := put.CallUnary(bg(), connect.NewRequest(&PutRequest{
		ID:       "bad",
		Document: []byte(`{"root":{"$ref":0},"table":[{"$type":"Widget"}]}`),
	}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	ids, err := env.Store.List(bg(), "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGet_NotFound(t *testing.T) {
	env := newTestEnv(t, true)
	get := client[GetRequest, GetResponse](env, GetProcedure, JSONCodec())
	_, err := get.CallUnary(bg(), connect.NewRequest(&GetRequest{ID: "missing"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = get.CallUnary(bg(), connect.NewRequest(&GetRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestPutGet_NoStore(t *testing.T) {
	env := newTestEnv(t, false)
	put := client[PutRequest, PutResponse](env, PutProcedure, JSONCodec())
	_, err := put.CallUnary(bg(), connect.NewRequest(&PutRequest{Document: []byte(`{"root":1,"table":[]}`)}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

func TestServeStopsOnCancel(t *testing.T) {
	eng, err := codec.New()
	require.NoError(t, err)
	srv := New(eng, WithShutdownTimeout(time.Second))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(bg())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	c := connect.NewClient[InspectRequest, InspectResponse](
		http.DefaultClient, "http://"+l.Addr().String()+InspectProcedure, connect.WithCodec(JSONCodec()))
	_, err = c.CallUnary(bg(), connect.NewRequest(&InspectRequest{Document: []byte(`{"root":1,"table":[]}`)}))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
