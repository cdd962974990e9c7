package wire

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

type yamlFormat struct{}

// YAML returns the YAML format. The indent width is len(indent), two spaces
// when indent is empty.
func YAML() Format { return yamlFormat{} }

func (yamlFormat) Name() string        { return "yaml" }
func (yamlFormat) ContentType() string { return "application/yaml" }

func (yamlFormat) Marshal(tree any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	width := len(indent)
	if width < 2 {
		width = 2
	}
	enc.SetIndent(width)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("wire: yaml marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wire: yaml marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (yamlFormat) Unmarshal(data []byte) (any, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("wire: yaml unmarshal: %w", err)
	}
	return Normalize(tree)
}
