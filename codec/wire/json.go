package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type jsonFormat struct{}

// JSON returns the JSON format. The indent string is used verbatim for each
// nesting level; an empty indent produces compact output.
func JSON() Format { return jsonFormat{} }

func (jsonFormat) Name() string        { return "json" }
func (jsonFormat) ContentType() string { return "application/json" }

func (jsonFormat) Marshal(tree any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("wire: json marshal: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (jsonFormat) Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("wire: json unmarshal: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("wire: json unmarshal: trailing data after document")
	}
	return Normalize(tree)
}
