package graph

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Property: a single keyed child of a composite value
// ---------------------------------------------------------------------------

// Property is one keyed child of a composite value. Array elements use their
// decimal index as the key.
type Property struct {
	Key   string
	Value any
}

// Composite is implemented by values whose children can be enumerated and
// restored one key at a time.
type Composite interface {
	Properties() []Property
	SetProperty(key string, v any) error
}

// Inheritor is implemented by values that carry an explicit ancestor link.
// Only the one link is preserved; chains are walked by following it.
type Inheritor interface {
	Ancestor() any
	SetAncestor(ancestor any)
}

// ---------------------------------------------------------------------------
// Object: ordered keyed mapping with an ancestor link
// ---------------------------------------------------------------------------

// Object is a keyed mapping that remembers insertion order and may delegate
// lookups to an ancestor. Objects are compared by identity, so two distinct
// Objects with equal contents are different nodes of a graph.
type Object struct {
	ancestor any
	keys     []string
	values   map[string]any
}

// NewObject creates an empty Object with no ancestor.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// NewObjectFrom creates an Object from alternating key/value arguments.
// Panics if a key is not a string or the argument count is odd.
func NewObjectFrom(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("graph: NewObjectFrom requires key/value pairs")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("graph: key %d is %T, not string", i/2, kv[i]))
		}
		o.Set(key, kv[i+1])
	}
	return o
}

// Get returns the own property stored under key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Lookup returns the property stored under key on o or, failing that, on the
// nearest ancestor Object that has it.
func (o *Object) Lookup(key string) (any, bool) {
	seen := make(map[*Object]bool)
	for cur := o; cur != nil && !seen[cur]; {
		seen[cur] = true
		if v, ok := cur.values[key]; ok {
			return v, true
		}
		next, _ := cur.ancestor.(*Object)
		cur = next
	}
	return nil, false
}

// Set stores v under key. New keys are appended to the key order.
func (o *Object) Set(key string, v any) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, exists := o.values[key]; !exists {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the own keys in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of own properties.
func (o *Object) Len() int {
	return len(o.keys)
}

// Ancestor returns the ancestor link, or nil.
func (o *Object) Ancestor() any {
	return o.ancestor
}

// SetAncestor replaces the ancestor link.
func (o *Object) SetAncestor(ancestor any) {
	o.ancestor = ancestor
}

// Properties returns the own properties in insertion order.
func (o *Object) Properties() []Property {
	props := make([]Property, len(o.keys))
	for i, k := range o.keys {
		props[i] = Property{Key: k, Value: o.values[k]}
	}
	return props
}

// SetProperty implements Composite.
func (o *Object) SetProperty(key string, v any) error {
	o.Set(key, v)
	return nil
}

// ---------------------------------------------------------------------------
// Array: ordered list addressed by index
// ---------------------------------------------------------------------------

// Array is a growable list of values with reference identity.
type Array struct {
	items []any
}

// NewArray creates an Array holding the given items.
func NewArray(items ...any) *Array {
	a := &Array{items: make([]any, len(items))}
	copy(a.items, items)
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.items)
}

// At returns the element at index i, or nil when i is out of range.
func (a *Array) At(i int) any {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

// Set stores v at index i, growing the array with nils when needed.
func (a *Array) Set(i int, v any) {
	for len(a.items) <= i {
		a.items = append(a.items, nil)
	}
	a.items[i] = v
}

// Append adds values to the end of the array.
func (a *Array) Append(vs ...any) {
	a.items = append(a.items, vs...)
}

// Items returns a copy of the elements.
func (a *Array) Items() []any {
	out := make([]any, len(a.items))
	copy(out, a.items)
	return out
}

// Properties returns one property per element, keyed by decimal index.
func (a *Array) Properties() []Property {
	props := make([]Property, len(a.items))
	for i, v := range a.items {
		props[i] = Property{Key: strconv.Itoa(i), Value: v}
	}
	return props
}

// SetProperty implements Composite. Keys must be non-negative indices.
func (a *Array) SetProperty(key string, v any) error {
	i, err := ParseIndex(key)
	if err != nil {
		return err
	}
	a.Set(i, v)
	return nil
}

// ParseIndex converts an element key back to an index.
func ParseIndex(key string) (int, error) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("graph: %q is not an element index", key)
	}
	return i, nil
}
