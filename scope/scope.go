// Package scope provides the name -> value lookup the codec uses to find
// constants and deferred symbols by dotted path.
package scope

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chazu/knot/graph"
)

var (
	ErrNotFound    = errors.New("scope: name not found")
	ErrInvalidPath = errors.New("scope: invalid path")
)

// ---------------------------------------------------------------------------
// Namespace: intermediate node created by dotted bindings
// ---------------------------------------------------------------------------

// Namespace groups bindings under a common dotted prefix.
type Namespace struct {
	members map[string]any
}

func newNamespace() *Namespace {
	return &Namespace{members: make(map[string]any)}
}

// Get returns the member bound under name.
func (ns *Namespace) Get(name string) (any, bool) {
	v, ok := ns.members[name]
	return v, ok
}

// ---------------------------------------------------------------------------
// Scope: the process-visible name table
// ---------------------------------------------------------------------------

// Scope maps dotted paths to live values. Binding "a.b.c" creates the
// namespaces "a" and "a.b" as needed. Resolution also walks into graph values,
// so binding "shared" to an Object makes "shared.config" resolve to that
// Object's "config" property.
type Scope struct {
	mu   sync.RWMutex
	root *Namespace
}

// New creates an empty scope.
func New() *Scope {
	return &Scope{root: newNamespace()}
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// Bind stores v under path, replacing any previous binding.
func (s *Scope) Bind(path string, v any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.root
	for i, p := range parts[:len(parts)-1] {
		next, ok := ns.members[p]
		if !ok {
			child := newNamespace()
			ns.members[p] = child
			ns = child
			continue
		}
		child, ok := next.(*Namespace)
		if !ok {
			return fmt.Errorf("%w: %q is bound to a %T, not a namespace",
				ErrInvalidPath, strings.Join(parts[:i+1], "."), next)
		}
		ns = child
	}
	ns.members[parts[len(parts)-1]] = v
	return nil
}

// Unbind removes the binding at path and reports whether it existed.
// Namespaces left empty are kept.
func (s *Scope) Unbind(path string) bool {
	parts, err := splitPath(path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.root
	for _, p := range parts[:len(parts)-1] {
		child, ok := ns.members[p].(*Namespace)
		if !ok {
			return false
		}
		ns = child
	}
	last := parts[len(parts)-1]
	if _, ok := ns.members[last]; !ok {
		return false
	}
	delete(ns.members, last)
	return true
}

// Resolve returns the value at path. Errors wrap ErrNotFound or ErrInvalidPath.
func (s *Scope) Resolve(path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur any = s.root
	for i, p := range parts {
		next, ok := member(cur, p)
		if !ok {
			return nil, fmt.Errorf("%w: %s (at %q)", ErrNotFound, path, strings.Join(parts[:i+1], "."))
		}
		cur = next
	}
	return cur, nil
}

// Names returns the top-level binding names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.root.members))
	for name := range s.root.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// member looks up one path segment inside a container value.
func member(container any, key string) (any, bool) {
	switch c := container.(type) {
	case *Namespace:
		return c.Get(key)
	case *graph.Object:
		return c.Lookup(key)
	case *graph.Array:
		i, err := graph.ParseIndex(key)
		if err != nil || i >= c.Len() {
			return nil, false
		}
		return c.At(i), true
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case []any:
		i, err := graph.ParseIndex(key)
		if err != nil || i >= len(c) {
			return nil, false
		}
		return c[i], true
	case graph.Composite:
		for _, p := range c.Properties() {
			if p.Key == key {
				return p.Value, true
			}
		}
	}
	return nil, false
}
