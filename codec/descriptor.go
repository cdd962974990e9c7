package codec

import (
	"fmt"
	"reflect"

	"github.com/chazu/knot/graph"
)

// ---------------------------------------------------------------------------
// Descriptor: how one kind of value is packed and rebuilt
// ---------------------------------------------------------------------------

// Storage selects whether a value is deduplicated by identity.
type Storage int

const (
	// ByReference values get a table slot; repeated occurrences become Refs.
	ByReference Storage = iota
	// ByValue values are packed inline every time they occur.
	ByValue
)

func (s Storage) String() string {
	switch s {
	case ByReference:
		return "ByReference"
	case ByValue:
		return "ByValue"
	}
	return fmt.Sprintf("Storage(%d)", int(s))
}

// Children selects how a descriptor's child properties are enumerated.
type Children int

const (
	ChildrenNone   Children = iota // scalar only
	ChildrenAuto                   // Composite, map[string]any or []any
	ChildrenCustom                 // Descriptor.Select
)

// Descriptor is a type plugin. Identify and Build are required; Extract,
// Select and Attach are optional.
type Descriptor struct {
	Name     string
	Storage  Storage
	Children Children

	// Identify reports whether this descriptor handles v found under key in
	// parent. The root is visited with an empty key and nil parent.
	Identify func(v any, key string, parent any) bool

	// Extract returns the scalar stored in Entry.Self. It must return an atom
	// or a tree of map[string]any, []any and atoms.
	Extract func(v any, key string, parent any) (any, error)

	// Select enumerates children when Children is ChildrenCustom.
	Select func(v any, key string, parent any) ([]graph.Property, error)

	// Build returns a bare instance from the scalar. Children are attached
	// after the instance has been installed in its slot.
	Build func(scalar any, key string, parent any) (any, error)

	// Attach sets one decoded child. When nil the decoder falls back to
	// Composite.SetProperty, map[string]any and []any.
	Attach func(v any, key string, child any) error

	// sized marks a scalar that is an element count Build preallocates.
	sized bool
}

func (d *Descriptor) validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	case d.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	case d.Identify == nil:
		return fmt.Errorf("%w: %s: no Identify", ErrInvalidDescriptor, d.Name)
	case d.Build == nil:
		return fmt.Errorf("%w: %s: no Build", ErrInvalidDescriptor, d.Name)
	case d.Children == ChildrenCustom && d.Select == nil:
		return fmt.Errorf("%w: %s: ChildrenCustom without Select", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

type pointerIdentity struct {
	typ reflect.Type
	ptr uintptr
}

type sliceIdentity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// identityOf returns a comparable key that is equal for two values exactly
// when they are the same node of a graph. Reference kinds compare by address.
// Comparable value kinds compare by value. Anything else has no identity and
// ok is false.
func identityOf(v any) (key any, ok bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return pointerIdentity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		return sliceIdentity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	}
	if rv.Comparable() {
		return v, true
	}
	return nil, false
}
