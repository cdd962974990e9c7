package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/codec/wire"
	"github.com/chazu/knot/manifest"
	"github.com/chazu/knot/plugin/protomsg"
	"github.com/chazu/knot/scope"
	"github.com/spf13/cobra"
)

// loadProject finds knot.toml at or above dir, or falls back to defaults
// rooted at dir.
func loadProject(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		m = manifest.Default(abs)
	}
	return m, nil
}

// newEngine builds the engine a project describes. Messages from the
// project's .proto schemas are registered through the protomsg plugin.
func newEngine(m *manifest.Manifest, s *scope.Scope) (*codec.Engine, error) {
	opts := append(m.EngineOptions(), codec.WithScope(s))

	sources, names, err := m.SchemaSources()
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		p := protomsg.New()
		if _, err := p.LoadSchemas(sources, names...); err != nil {
			return nil, fmt.Errorf("loading schemas: %w", err)
		}
		opts = append(opts, codec.WithTypes(p.Descriptor()))
	}

	return codec.New(opts...)
}

// input reads the named file, or stdin when args is empty or "-".
func input(cmd *cobra.Command, args []string) (name string, data []byte, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		return "<stdin>", data, err
	}
	data, err = os.ReadFile(args[0])
	return args[0], data, err
}

// formatFor picks a wire format: the explicit name if given, else the file
// extension, else the project default.
func formatFor(explicit, file string, m *manifest.Manifest) (wire.Format, error) {
	if explicit != "" {
		return wire.Lookup(explicit)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return wire.Lookup("json")
	case ".cbor":
		return wire.Lookup("cbor")
	case ".yaml", ".yml":
		return wire.Lookup("yaml")
	}
	return wire.Lookup(m.Codec.Format)
}
