package codec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/chazu/knot/graph"
)

// AncestorKey names the ancestor position in paths, filter calls and hook
// calls.
const AncestorKey = "(ancestor)"

// DefaultMaxDepth bounds graph nesting during encode and decode.
const DefaultMaxDepth = 10000

// ---------------------------------------------------------------------------
// Encode options
// ---------------------------------------------------------------------------

// FilterFunc sees every property before it is packed, and every ancestor
// under AncestorKey. It may return a substitute value, or keep == false to
// drop the property or the ancestor link.
type FilterFunc func(key string, v any, parent any) (out any, keep bool)

// EncodeOption configures one Encode call.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	filter FilterFunc
	keys   map[string]bool
}

// WithFilter installs fn for the call. The root itself is never filtered.
func WithFilter(fn FilterFunc) EncodeOption {
	return func(c *encodeConfig) { c.filter = fn }
}

// WithKeys keeps only the named properties of the root. Deeper properties
// are not affected.
func WithKeys(keys ...string) EncodeOption {
	return func(c *encodeConfig) {
		c.keys = make(map[string]bool, len(keys))
		for _, k := range keys {
			c.keys[k] = true
		}
	}
}

// ---------------------------------------------------------------------------
// encoder: per-call state
// ---------------------------------------------------------------------------

// encoder holds the state of one Encode call. It is never shared.
type encoder struct {
	types    []*Descriptor
	symbols  *symbolTable
	cfg      encodeConfig
	maxDepth int

	table *Table
	index map[any]int
}

func (e *encoder) encode(root any) (*Table, error) {
	e.table = &Table{}
	e.index = make(map[any]int)
	slot, err := e.visit(root, "", nil, Path{}, 0)
	if err != nil {
		return nil, err
	}
	e.table.Root = slot
	return e.table, nil
}

// visit packs v and returns its slot.
func (e *encoder) visit(v any, key string, parent any, path Path, depth int) (any, error) {
	if depth > e.maxDepth {
		return nil, fmt.Errorf("codec: %w at %s (limit %d)", ErrDepthExceeded, path, e.maxDepth)
	}
	if graph.IsAtom(v) {
		if graph.IsNil(v) {
			return nil, nil
		}
		return v, nil
	}
	if tok, ok := nonFiniteToken(v); ok {
		return &Entry{Type: ConstantType, Self: tok}, nil
	}
	if sym, ok := e.symbols.match(v); ok {
		return sym, nil
	}

	d, err := resolveIn(e.types, v, key, parent)
	if err != nil {
		return nil, withPath(err, path)
	}

	if d.Storage == ByValue {
		entry := &Entry{Type: d.Name}
		if err := e.fill(entry, d, v, key, parent, path, depth); err != nil {
			return nil, err
		}
		return entry, nil
	}

	id, hasID := identityOf(v)
	if hasID {
		if idx, seen := e.index[id]; seen {
			return Ref{Index: idx}, nil
		}
	}

	// Reserve the slot before packing children so cycles land on it.
	idx := len(e.table.Entries)
	entry := &Entry{Type: d.Name}
	e.table.Entries = append(e.table.Entries, entry)
	if hasID {
		e.index[id] = idx
	}
	if err := e.fill(entry, d, v, key, parent, path, depth); err != nil {
		return nil, err
	}
	return Ref{Index: idx}, nil
}

// fill packs the scalar, ancestor and properties of v into entry.
func (e *encoder) fill(entry *Entry, d *Descriptor, v any, key string, parent any, path Path, depth int) error {
	if d.Extract != nil {
		self, err := d.Extract(v, key, parent)
		if err != nil {
			return hookError(err, d, "extract", path)
		}
		entry.Self = self
	}

	var props []graph.Property
	switch d.Children {
	case ChildrenNone:
		return nil
	case ChildrenAuto:
		var ok bool
		props, ok = autoProperties(v)
		if !ok {
			return fmt.Errorf("codec: %w: %s has ChildrenAuto but %s has no properties (at %s)",
				ErrInvalidDescriptor, d.Name, describe(v), path)
		}
	case ChildrenCustom:
		var err error
		props, err = d.Select(v, key, parent)
		if err != nil {
			return hookError(err, d, "select", path)
		}
	}

	if inh, ok := v.(graph.Inheritor); ok {
		anc, keep := inh.Ancestor(), true
		if !graph.IsNil(anc) && e.cfg.filter != nil {
			anc, keep = e.cfg.filter(AncestorKey, anc, v)
		}
		if keep && !graph.IsNil(anc) {
			slot, err := e.visit(anc, AncestorKey, v, path.child(AncestorKey), depth+1)
			if err != nil {
				return err
			}
			entry.Proto = slot
		}
	}

	entry.Props = make([]Field, 0, len(props))
	for _, p := range props {
		if depth == 0 && e.cfg.keys != nil && !e.cfg.keys[p.Key] {
			continue
		}
		child := p.Value
		if e.cfg.filter != nil {
			out, keep := e.cfg.filter(p.Key, child, v)
			if !keep {
				continue
			}
			child = out
		}
		slot, err := e.visit(child, p.Key, v, path.child(p.Key), depth+1)
		if err != nil {
			return err
		}
		entry.Props = append(entry.Props, Field{Key: p.Key, Value: slot})
	}
	return nil
}

// autoProperties enumerates the children of the stock container kinds.
func autoProperties(v any) ([]graph.Property, bool) {
	switch x := v.(type) {
	case graph.Composite:
		return x.Properties(), true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		props := make([]graph.Property, len(keys))
		for i, k := range keys {
			props[i] = graph.Property{Key: k, Value: x[k]}
		}
		return props, true
	case []any:
		props := make([]graph.Property, len(x))
		for i, item := range x {
			props[i] = graph.Property{Key: strconv.Itoa(i), Value: item}
		}
		return props, true
	}
	return nil, false
}

// hookError attaches the path to an error returned by a descriptor hook.
func hookError(err error, d *Descriptor, hook string, path Path) error {
	var (
		ute *UnknownTypeError
		cte *CorruptTableError
		use *UnresolvedSymbolError
	)
	if errors.As(err, &ute) || errors.As(err, &cte) || errors.As(err, &use) {
		return withPath(err, path)
	}
	return fmt.Errorf("codec: %s %s at %s: %w", d.Name, hook, path, err)
}
