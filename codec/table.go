package codec

import (
	"sort"

	"github.com/chazu/knot/graph"
)

// ---------------------------------------------------------------------------
// Table: the flat form of an encoded graph
// ---------------------------------------------------------------------------

// A slot is the encoded form of one position in the graph. It is one of:
//   - an atom (nil, bool, number, string), stored inline
//   - an *Entry, for ByValue types, stored inline
//   - a Ref, pointing at a table entry for ByReference types

// Ref points at a table entry. It stands in for every occurrence of an
// identity after (and including) the first.
type Ref struct {
	Index int
}

// Field is one keyed child slot of an Entry.
type Field struct {
	Key   string
	Value any
}

// Entry is a packed value: its type name, optional scalar form, optional
// ancestor slot and ordered property slots.
type Entry struct {
	Type  string
	Self  any
	Proto any
	Props []Field
}

// Table is the result of encoding a graph. Entries are stored in first-visit
// pre-order, so when the root is a ByReference value it occupies index 0.
type Table struct {
	Root    any
	Entries []*Entry
}

// Len returns the number of table entries.
func (t *Table) Len() int {
	return len(t.Entries)
}

// Stats summarizes a table for inspection tooling.
type Stats struct {
	Entries int            // table entries (ByReference values)
	Inline  int            // inline entries (ByValue values, constants)
	Refs    int            // reference markers
	Atoms   int            // inline atoms
	Types   map[string]int // entries and inline entries by type name
}

// TypeNames returns the names in Types sorted by name.
func (s Stats) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats walks every slot in the table once.
func (t *Table) Stats() Stats {
	st := Stats{Entries: len(t.Entries), Types: make(map[string]int)}

	var slot func(s any)
	var entry func(e *Entry)
	entry = func(e *Entry) {
		st.Types[e.Type]++
		if e.Proto != nil {
			slot(e.Proto)
		}
		for _, f := range e.Props {
			slot(f.Value)
		}
	}
	slot = func(s any) {
		switch x := s.(type) {
		case Ref:
			st.Refs++
		case *Entry:
			if x == nil {
				return
			}
			st.Inline++
			entry(x)
		default:
			if graph.IsAtom(x) {
				st.Atoms++
			}
		}
	}

	slot(t.Root)
	for _, e := range t.Entries {
		if e != nil {
			entry(e)
		}
	}
	return st
}
