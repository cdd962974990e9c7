package server

import (
	"encoding/json"

	"connectrpc.com/connect"
	"github.com/fxamacker/cbor/v2"
)

// The table service has no generated protobuf messages. Its requests and
// responses are plain structs, carried by these two codecs. Registering the
// JSON codec under "json" replaces connect's protojson default.

type jsonCodec struct{}

func (jsonCodec) Name() string                         { return "json" }
func (jsonCodec) Marshal(msg any) ([]byte, error)      { return json.Marshal(msg) }
func (jsonCodec) Unmarshal(data []byte, msg any) error { return json.Unmarshal(data, msg) }

type cborCodec struct{}

func (cborCodec) Name() string                         { return "cbor" }
func (cborCodec) Marshal(msg any) ([]byte, error)      { return cbor.Marshal(msg) }
func (cborCodec) Unmarshal(data []byte, msg any) error { return cbor.Unmarshal(data, msg) }

// JSONCodec returns the codec clients use to talk JSON to the service.
func JSONCodec() connect.Codec { return jsonCodec{} }

// CBORCodec returns the codec clients use to talk CBOR to the service.
func CBORCodec() connect.Codec { return cborCodec{} }

func handlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithCodec(cborCodec{}),
	}
}
