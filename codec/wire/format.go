// Package wire carries encoded tables across generic tree formats. A format
// only sees nested map[string]any, []any and atoms; it knows nothing about
// tables or references.
package wire

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownFormat is returned when a format name is not registered.
var ErrUnknownFormat = errors.New("wire: unknown format")

// Format marshals a generic tree to bytes and back. Unmarshal returns a tree
// normalized with Normalize: maps keyed by string, numbers as float64.
type Format interface {
	Name() string
	ContentType() string
	Marshal(tree any, indent string) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// ---------------------------------------------------------------------------
// Registry: formats by name and content type
// ---------------------------------------------------------------------------

// Registry maps format names and content types to formats.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Format
	byType map[string]Format
}

// NewRegistry returns a registry preloaded with JSON, CBOR and YAML.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Format),
		byType: make(map[string]Format),
	}
	r.Register(JSON())
	r.Register(CBOR())
	r.Register(YAML())
	return r
}

// Register adds f, replacing any format with the same name or content type.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[f.Name()] = f
	r.byType[f.ContentType()] = f
}

// Lookup returns the format registered under name.
func (r *Registry) Lookup(name string) (Format, error) {
	r.mu.RLock()
	f, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return f, nil
}

// ByContentType returns the format for a MIME type, or nil.
func (r *Registry) ByContentType(contentType string) Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[contentType]
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Lookup finds a format in the default registry.
func Lookup(name string) (Format, error) {
	return Default.Lookup(name)
}
