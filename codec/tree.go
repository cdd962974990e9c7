package codec

import (
	"math"
	"strconv"

	"github.com/chazu/knot/graph"
)

// ---------------------------------------------------------------------------
// Wire tree: the generic shape handed to an interchange format
// ---------------------------------------------------------------------------

// Wire tree keys. Every non-atom slot is a map carrying exactly one of
// treeType or treeRef, so atoms and packed values never collide.
const (
	treeRoot  = "root"
	treeTable = "table"
	treeType  = "$type"
	treeRef   = "$ref"
	treeSelf  = "self"
	treeProto = "proto"
	treeProps = "props"
)

// Tree converts the table into nested maps, slices and atoms that any generic
// tree format can carry. Properties become [key, slot] pairs so their order
// survives formats that sort or scramble map keys.
func (t *Table) Tree() map[string]any {
	entries := make([]any, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = entryTree(e)
	}
	return map[string]any{
		treeRoot:  slotTree(t.Root),
		treeTable: entries,
	}
}

func slotTree(s any) any {
	switch x := s.(type) {
	case Ref:
		return map[string]any{treeRef: x.Index}
	case *Entry:
		return entryTree(x)
	default:
		return x
	}
}

func entryTree(e *Entry) map[string]any {
	m := map[string]any{treeType: e.Type}
	if e.Self != nil {
		m[treeSelf] = e.Self
	}
	if e.Proto != nil {
		m[treeProto] = slotTree(e.Proto)
	}
	if len(e.Props) > 0 {
		pairs := make([]any, len(e.Props))
		for i, f := range e.Props {
			pairs[i] = []any{f.Key, slotTree(f.Value)}
		}
		m[treeProps] = pairs
	}
	return m
}

// TableFromTree rebuilds a Table from the output of a format's Unmarshal.
// Reference indices are checked for shape here and for range during decode.
func TableFromTree(tree any) (*Table, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, corrupt(Path{}, -1, "document is %T, not a map", tree)
	}

	t := &Table{}
	if raw, ok := m[treeTable]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, corrupt(Path{treeTable}, -1, "table is %T, not a list", raw)
		}
		t.Entries = make([]*Entry, len(list))
		for i, item := range list {
			em, ok := item.(map[string]any)
			if !ok {
				return nil, corrupt(Path{treeTable}, i, "entry is %T, not a map", item)
			}
			e, err := entryFromTree(em, Path{treeTable, strconv.Itoa(i)})
			if err != nil {
				return nil, err
			}
			t.Entries[i] = e
		}
	}

	root, err := slotFromTree(m[treeRoot], Path{})
	if err != nil {
		return nil, err
	}
	t.Root = root
	return t, nil
}

func slotFromTree(v any, path Path) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if raw, ok := x[treeRef]; ok {
			idx, err := refIndex(raw, path)
			if err != nil {
				return nil, err
			}
			return Ref{Index: idx}, nil
		}
		if _, ok := x[treeType]; ok {
			return entryFromTree(x, path)
		}
		return nil, corrupt(path, -1, "map slot has neither %s nor %s", treeType, treeRef)
	case []any:
		return nil, corrupt(path, -1, "list in slot position")
	}
	if !graph.IsAtom(v) {
		return nil, corrupt(path, -1, "slot holds %T", v)
	}
	return v, nil
}

func entryFromTree(m map[string]any, path Path) (*Entry, error) {
	name, ok := m[treeType].(string)
	if !ok || name == "" {
		return nil, corrupt(path, -1, "entry has no type name")
	}
	e := &Entry{Type: name, Self: m[treeSelf]}

	if raw, ok := m[treeProto]; ok && raw != nil {
		proto, err := slotFromTree(raw, path.child(AncestorKey))
		if err != nil {
			return nil, err
		}
		e.Proto = proto
	}

	if raw, ok := m[treeProps]; ok && raw != nil {
		pairs, ok := raw.([]any)
		if !ok {
			return nil, corrupt(path, -1, "props is %T, not a list", raw)
		}
		e.Props = make([]Field, 0, len(pairs))
		for _, p := range pairs {
			pair, ok := p.([]any)
			if !ok || len(pair) != 2 {
				return nil, corrupt(path, -1, "property is not a [key, value] pair")
			}
			key, ok := pair[0].(string)
			if !ok {
				return nil, corrupt(path, -1, "property key is %T, not a string", pair[0])
			}
			val, err := slotFromTree(pair[1], path.child(key))
			if err != nil {
				return nil, err
			}
			e.Props = append(e.Props, Field{Key: key, Value: val})
		}
	}
	return e, nil
}

func refIndex(raw any, path Path) (int, error) {
	f, ok := graph.ToFloat(raw)
	if !ok || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, corrupt(path, -1, "malformed reference %v", raw)
	}
	return int(f), nil
}
