package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical mode makes equal trees encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type cborFormat struct{}

// CBOR returns the canonical CBOR format. Indentation does not apply.
func CBOR() Format { return cborFormat{} }

func (cborFormat) Name() string        { return "cbor" }
func (cborFormat) ContentType() string { return "application/cbor" }

func (cborFormat) Marshal(tree any, _ string) ([]byte, error) {
	data, err := cborEncMode.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("wire: cbor marshal: %w", err)
	}
	return data, nil
}

func (cborFormat) Unmarshal(data []byte) (any, error) {
	var tree any
	if err := cbor.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("wire: cbor unmarshal: %w", err)
	}
	return Normalize(tree)
}
