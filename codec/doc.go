// Package codec flattens value graphs into tables and rebuilds them.
//
// A graph may contain cycles and shared nodes. Encode walks it once and
// gives each reference-typed node a single table entry; every further
// occurrence becomes a Ref to that entry. Decode allocates each entry's
// instance and records it before decoding the entry's children, so cycles
// and forward references resolve to the same instance.
//
// Values are matched to Descriptors in priority order. The most recently
// registered descriptor wins, and the stock descriptors (Object, Array, Map,
// List, Date, Unknown) sit at the back. Registered constants are checked
// before any descriptor: a value that is one of them travels as its name.
//
//	eng, _ := codec.New(codec.WithScope(s), codec.WithConstants("shared.config"))
//	data, _ := eng.Marshal(root)
//	back, _ := eng.Unmarshal(data)
package codec
