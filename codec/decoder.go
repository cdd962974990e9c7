package codec

import (
	"errors"
	"fmt"

	"github.com/chazu/knot/graph"
)

// DefaultMaxElements bounds the list and array elements one decode call may
// allocate. A table states lengths and indices as plain numbers, so they are
// charged against this budget before any memory is reserved.
const DefaultMaxElements = 1 << 20

// ---------------------------------------------------------------------------
// Decode options
// ---------------------------------------------------------------------------

// PostProcessFunc runs after every position is decoded, atoms included. Its
// result replaces the decoded value at that position. Table slots keep the
// value as built, so other references to the same entry are unaffected.
type PostProcessFunc func(key string, v any, parent any) any

// DecodeOption configures one Decode call.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	post PostProcessFunc
}

// WithPostProcess installs fn for the call.
func WithPostProcess(fn PostProcessFunc) DecodeOption {
	return func(c *decodeConfig) { c.post = fn }
}

// ---------------------------------------------------------------------------
// decoder: per-call state
// ---------------------------------------------------------------------------

// decoder holds the placeholder table of one Decode call. A slot is either
// pending or holds the instance built for that entry, installed before any
// of its children are decoded.
type decoder struct {
	types     *TypeRegistry
	constants *ConstantRegistry
	cfg       decodeConfig
	maxDepth  int
	elements  int // remaining element budget

	table *Table
	slots []any
	built []bool
}

func (d *decoder) decode(t *Table) (any, error) {
	d.table = t
	d.slots = make([]any, len(t.Entries))
	d.built = make([]bool, len(t.Entries))
	return d.unpack(t.Root, "", nil, Path{}, 0)
}

// unpack decodes one slot.
func (d *decoder) unpack(s any, key string, parent any, path Path, depth int) (any, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("codec: %w at %s (limit %d)", ErrDepthExceeded, path, d.maxDepth)
	}

	var (
		v   any
		err error
	)
	switch x := s.(type) {
	case Ref:
		v, err = d.deref(x.Index, key, parent, path, depth)
	case *Entry:
		if x == nil {
			return nil, corrupt(path, -1, "nil entry")
		}
		v, err = d.build(x, -1, key, parent, path, depth)
	default:
		if !graph.IsAtom(x) {
			return nil, corrupt(path, -1, "slot holds %T", x)
		}
		v = x
	}
	if err != nil {
		return nil, err
	}

	if d.cfg.post != nil {
		v = d.cfg.post(key, v, parent)
	}
	return v, nil
}

// deref returns the instance in slot idx, building it first if it is
// still pending.
func (d *decoder) deref(idx int, key string, parent any, path Path, depth int) (any, error) {
	if idx < 0 || idx >= len(d.slots) {
		return nil, corrupt(path, idx, "reference out of range [0,%d)", len(d.slots))
	}
	if d.built[idx] {
		return d.slots[idx], nil
	}
	entry := d.table.Entries[idx]
	if entry == nil {
		return nil, corrupt(path, idx, "empty table entry")
	}
	return d.build(entry, idx, key, parent, path, depth)
}

// build creates the instance for entry, records it in slot idx (when idx is a
// table index), then decodes its ancestor and properties into it.
func (d *decoder) build(entry *Entry, idx int, key string, parent any, path Path, depth int) (any, error) {
	if entry.Type == ConstantType || entry.Type == DeferredType {
		v, err := d.constants.resolveToken(entry)
		if err != nil {
			return nil, withPath(err, path)
		}
		d.install(idx, v)
		return v, nil
	}

	desc, err := d.types.ResolveByName(entry.Type)
	if err != nil {
		return nil, withPath(err, path)
	}
	if desc.sized {
		if n, ok := graph.ToFloat(entry.Self); ok && n > 0 {
			if err := d.reserve(n, path, idx); err != nil {
				return nil, err
			}
		}
	}
	inst, err := desc.Build(entry.Self, key, parent)
	if err != nil {
		return nil, buildError(err, desc, path, idx)
	}
	d.install(idx, inst)

	if entry.Proto != nil {
		anc, err := d.unpack(entry.Proto, AncestorKey, inst, path.child(AncestorKey), depth+1)
		if err != nil {
			return nil, err
		}
		inh, ok := inst.(graph.Inheritor)
		if !ok {
			return nil, corrupt(path, idx, "%s carries an ancestor but %s cannot hold one", desc.Name, describe(inst))
		}
		inh.SetAncestor(anc)
	}

	for _, f := range entry.Props {
		childPath := path.child(f.Key)
		if a, ok := inst.(*graph.Array); ok {
			if err := d.grow(a, f.Key, childPath, idx); err != nil {
				return nil, err
			}
		}
		child, err := d.unpack(f.Value, f.Key, inst, childPath, depth+1)
		if err != nil {
			return nil, err
		}
		if err := attach(desc, inst, f.Key, child); err != nil {
			return nil, buildError(err, desc, childPath, idx)
		}
	}
	return inst, nil
}

// reserve charges n elements against the call's budget.
func (d *decoder) reserve(n float64, path Path, idx int) error {
	if n > float64(d.elements) {
		return corrupt(path, idx, "%v elements exceed the remaining budget of %d", n, d.elements)
	}
	d.elements -= int(n)
	return nil
}

// grow charges the nils an Array would gain if key were set on it. Bad keys
// are left for attach to report.
func (d *decoder) grow(a *graph.Array, key string, path Path, idx int) error {
	i, err := graph.ParseIndex(key)
	if err != nil || i < a.Len() {
		return nil
	}
	return d.reserve(float64(i+1-a.Len()), path, idx)
}

func (d *decoder) install(idx int, v any) {
	if idx < 0 {
		return
	}
	d.slots[idx] = v
	d.built[idx] = true
}

// attach sets one decoded property on inst.
func attach(desc *Descriptor, inst any, key string, child any) error {
	if desc.Attach != nil {
		return desc.Attach(inst, key, child)
	}
	switch x := inst.(type) {
	case graph.Composite:
		return x.SetProperty(key, child)
	case map[string]any:
		x[key] = child
		return nil
	case []any:
		i, err := graph.ParseIndex(key)
		if err != nil {
			return err
		}
		if i >= len(x) {
			return fmt.Errorf("index %d beyond length %d", i, len(x))
		}
		x[i] = child
		return nil
	}
	return fmt.Errorf("%s has no settable properties", describe(inst))
}

// buildError attaches the path to an error from Build or Attach. Errors
// that are not already codec errors make the table corrupt.
func buildError(err error, desc *Descriptor, path Path, idx int) error {
	var (
		ute *UnknownTypeError
		cte *CorruptTableError
		use *UnresolvedSymbolError
	)
	if errors.As(err, &ute) || errors.As(err, &cte) || errors.As(err, &use) {
		return withPath(err, path)
	}
	return &CorruptTableError{Path: path, Index: idx, Reason: "cannot rebuild " + desc.Name, Err: err}
}
