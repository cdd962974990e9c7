// Package manifest handles knot.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chazu/knot/codec"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "knot.toml"

// Manifest represents a knot.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Codec   CodecConfig  `toml:"codec"`
	Schemas SchemaConfig `toml:"schemas"`
	Server  ServerConfig `toml:"server"`
	Store   StoreConfig  `toml:"store"`

	// Dir is the directory containing the knot.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// CodecConfig configures the codec engine.
type CodecConfig struct {
	Format    string   `toml:"format"`
	Indent    string   `toml:"indent"`
	MaxDepth  int      `toml:"max-depth"`
	Constants []string `toml:"constants"`
	Deferred  []string `toml:"deferred"`
}

// SchemaConfig lists .proto files whose messages the codec should know.
type SchemaConfig struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

// ServerConfig configures `knot serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	Path     string   `toml:"path"`
	CacheTTL Duration `toml:"cache-ttl"`
}

// Duration is a time.Duration written as a string such as "90s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults used when a manifest leaves a field empty.
const (
	DefaultFormat    = "json"
	DefaultAddr      = "localhost:8740"
	DefaultStorePath = ".knot/documents.db"
)

// Default returns the manifest used when no knot.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Codec.Format == "" {
		m.Codec.Format = DefaultFormat
	}
	if m.Codec.MaxDepth <= 0 {
		m.Codec.MaxDepth = codec.DefaultMaxDepth
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
}

// Load parses a knot.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a knot.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the document database.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// EngineOptions returns the codec options the manifest describes.
func (m *Manifest) EngineOptions() []codec.Option {
	opts := []codec.Option{
		codec.WithFormat(m.Codec.Format),
		codec.WithIndent(m.Codec.Indent),
		codec.WithMaxDepth(m.Codec.MaxDepth),
	}
	if len(m.Codec.Constants) > 0 {
		opts = append(opts, codec.WithConstants(m.Codec.Constants...))
	}
	if len(m.Codec.Deferred) > 0 {
		opts = append(opts, codec.WithDeferred(m.Codec.Deferred...))
	}
	return opts
}
