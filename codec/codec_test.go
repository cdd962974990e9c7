package codec

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/knot/graph"
	"github.com/chazu/knot/scope"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func roundTrip(t *testing.T, eng *Engine, v any) any {
	t.Helper()
	tab, err := eng.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return back
}

// ---------------------------------------------------------------------------
// Structure and identity
// ---------------------------------------------------------------------------

func TestAcyclicRoundTrip(t *testing.T) {
	eng := newEngine(t)
	root := graph.NewObjectFrom(
		"name", "widget",
		"count", 3,
		"ratio", 0.25,
		"ok", true,
		"none", nil,
		"tags", graph.NewArray("a", "b"),
		"meta", map[string]any{"k": "v", "n": 1},
		"list", []any{1.5, "x", nil},
	)

	back := roundTrip(t, eng, root)
	if !graph.Equal(root, back) {
		t.Fatalf("round trip changed the graph")
	}
	if back == any(root) {
		t.Error("decode returned the input instead of a rebuilt value")
	}
}

func TestAtomRoot(t *testing.T) {
	eng := newEngine(t)
	for _, v := range []any{nil, true, "s", 42, 2.5} {
		tab, err := eng.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		if tab.Len() != 0 {
			t.Errorf("Encode(%v): %d entries, want 0", v, tab.Len())
		}
		back, err := eng.Decode(tab)
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}
		if back != v {
			t.Errorf("round trip %v = %v", v, back)
		}
	}

	var typedNil *graph.Object
	tab, err := eng.Encode(typedNil)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Root != nil {
		t.Errorf("typed nil root = %#v, want nil", tab.Root)
	}
}

func TestSharedReferenceIdentity(t *testing.T) {
	eng := newEngine(t)
	shared := graph.NewObjectFrom("v", 1)
	root := graph.NewObjectFrom("x", shared, "y", shared)

	tab, err := eng.Encode(root)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Len() != 2 {
		t.Fatalf("table has %d entries, want 2", tab.Len())
	}
	if tab.Root != (Ref{Index: 0}) {
		t.Errorf("root slot = %#v, want Ref{0}", tab.Root)
	}

	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	obj := back.(*graph.Object)
	x, _ := obj.Get("x")
	y, _ := obj.Get("y")
	if x != y {
		t.Error("x and y decoded to different objects")
	}
	if x == any(shared) {
		t.Error("decoded x is the original object")
	}
}

func TestCycleSafety(t *testing.T) {
	eng := newEngine(t)
	a := graph.NewObject()
	a.Set("self", a)

	back := roundTrip(t, eng, a).(*graph.Object)
	self, _ := back.Get("self")
	if self != any(back) {
		t.Error("a.self does not point back at a")
	}

	x := graph.NewObjectFrom("name", "x")
	y := graph.NewObjectFrom("name", "y", "peer", x)
	x.Set("peer", y)
	back = roundTrip(t, eng, x).(*graph.Object)
	peer, _ := back.Get("peer")
	peerBack, _ := peer.(*graph.Object).Get("peer")
	if peerBack != any(back) {
		t.Error("x.peer.peer is not x")
	}
}

func TestMapAndListIdentity(t *testing.T) {
	eng := newEngine(t)

	m := map[string]any{}
	m["me"] = m
	back := roundTrip(t, eng, m).(map[string]any)
	inner, ok := back["me"].(map[string]any)
	if !ok || reflect.ValueOf(inner).Pointer() != reflect.ValueOf(back).Pointer() {
		t.Error("map self reference not preserved")
	}

	list := []any{1, 2}
	root := map[string]any{"a": list, "b": list}
	got := roundTrip(t, eng, root).(map[string]any)
	a := got["a"].([]any)
	b := got["b"].([]any)
	a[0] = "changed"
	if b[0] != "changed" {
		t.Error("shared list decoded into two backing arrays")
	}

	loop := make([]any, 1)
	loop[0] = loop
	gotLoop := roundTrip(t, eng, loop).([]any)
	if &gotLoop[0].([]any)[0] != &gotLoop[0] {
		t.Error("list self reference not preserved")
	}
}

func TestAncestorRoundTrip(t *testing.T) {
	eng := newEngine(t)
	base := graph.NewObjectFrom("greet", "hello")
	child := graph.NewObjectFrom("own", 1)
	child.SetAncestor(base)
	root := graph.NewArray(child, base)

	back := roundTrip(t, eng, root).(*graph.Array)
	gotChild := back.At(0).(*graph.Object)
	if gotChild.Ancestor() != back.At(1) {
		t.Fatal("ancestor link does not point at the shared base")
	}
	if v, ok := gotChild.Lookup("greet"); !ok || v != "hello" {
		t.Errorf("Lookup through ancestor = %v, %v", v, ok)
	}
	if _, own := gotChild.Get("greet"); own {
		t.Error("inherited property became an own property")
	}
}

func TestDateByValue(t *testing.T) {
	eng := newEngine(t)
	when := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	root := graph.NewObjectFrom("a", when, "b", when)

	tab, err := eng.Encode(root)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Len() != 1 {
		t.Errorf("dates took table slots: %d entries", tab.Len())
	}
	back := roundTrip(t, eng, root).(*graph.Object)
	got, _ := back.Get("b")
	if !got.(time.Time).Equal(when) {
		t.Errorf("date = %v, want %v", got, when)
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	eng := newEngine(t)
	inner := graph.NewObjectFrom("k", "v")
	root := graph.NewObjectFrom("inner", inner, "secret", "s")
	_, err := eng.Encode(root, WithFilter(func(key string, v any, _ any) (any, bool) {
		return v, key != "secret"
	}))
	if err != nil {
		t.Fatal(err)
	}
	if keys := root.Keys(); len(keys) != 2 {
		t.Errorf("input keys changed: %v", keys)
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func taggedObject(name string) *Descriptor {
	return &Descriptor{
		Name:    name,
		Storage: ByValue,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(*graph.Object)
			return ok
		},
		Extract: func(any, string, any) (any, error) { return name, nil },
		Build: func(scalar any, _ string, _ any) (any, error) {
			return "rebuilt:" + scalar.(string), nil
		},
	}
}

func TestDispatchPriority(t *testing.T) {
	eng := newEngine(t)
	if err := eng.Register(taggedObject("First")); err != nil {
		t.Fatal(err)
	}
	if err := eng.Register(taggedObject("Second")); err != nil {
		t.Fatal(err)
	}

	tab, err := eng.Encode(graph.NewObjectFrom("a", 1))
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := tab.Root.(*Entry)
	if !ok || entry.Type != "Second" {
		t.Fatalf("root = %#v, want inline Second entry", tab.Root)
	}
	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	if back != "rebuilt:Second" {
		t.Errorf("decoded %v", back)
	}

	names := eng.Types().Names()
	if names[0] != "Second" || names[1] != "First" || names[len(names)-1] != "Unknown" {
		t.Errorf("priority order = %v", names)
	}
}

func TestReRegisterMovesToFront(t *testing.T) {
	reg := NewTypeRegistry()
	if err := reg.RegisterAll(taggedObject("A"), taggedObject("B")); err != nil {
		t.Fatal(err)
	}
	if got := reg.Names(); got[0] != "A" || got[1] != "B" {
		t.Fatalf("RegisterAll order = %v", got)
	}
	if err := reg.Register(taggedObject("B")); err != nil {
		t.Fatal(err)
	}
	if got := reg.Names(); len(got) != 2 || got[0] != "B" {
		t.Errorf("after re-register = %v", got)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	eng := newEngine(t)
	tests := []*Descriptor{
		nil,
		{Name: ""},
		{Name: "NoIdentify", Build: func(any, string, any) (any, error) { return nil, nil }},
		{Name: ConstantType, Identify: func(any, string, any) bool { return false },
			Build: func(any, string, any) (any, error) { return nil, nil }},
		{Name: "Custom", Children: ChildrenCustom, Identify: func(any, string, any) bool { return false },
			Build: func(any, string, any) (any, error) { return nil, nil }},
	}
	for _, d := range tests {
		if err := eng.Register(d); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("Register(%v) = %v, want ErrInvalidDescriptor", d, err)
		}
	}
}

type point struct{ X, Y int }

func TestCustomChildren(t *testing.T) {
	eng := newEngine(t)
	err := eng.Register(&Descriptor{
		Name:     "Point",
		Storage:  ByReference,
		Children: ChildrenCustom,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(*point)
			return ok
		},
		Select: func(v any, _ string, _ any) ([]graph.Property, error) {
			p := v.(*point)
			return []graph.Property{{Key: "x", Value: p.X}, {Key: "y", Value: p.Y}}, nil
		},
		Build: func(any, string, any) (any, error) { return &point{}, nil },
		Attach: func(v any, key string, child any) error {
			p := v.(*point)
			n, _ := graph.ToFloat(child)
			switch key {
			case "x":
				p.X = int(n)
			case "y":
				p.Y = int(n)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	p := &point{X: 3, Y: 4}
	back := roundTrip(t, eng, []any{p, p}).([]any)
	got := back[0].(*point)
	if *got != *p {
		t.Errorf("point = %+v, want %+v", *got, *p)
	}
	if back[1] != any(got) {
		t.Error("shared point decoded twice")
	}
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

func TestConstantIdentityRoundTrip(t *testing.T) {
	s := scope.New()
	cfg := graph.NewObjectFrom("level", 3)
	if err := s.Bind("shared.config", cfg); err != nil {
		t.Fatal(err)
	}
	eng := newEngine(t, WithScope(s), WithConstants("shared.config"))

	root := graph.NewObjectFrom("c", cfg, "d", cfg)
	data, err := eng.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	tab, err := eng.UnmarshalTable(data)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Len() != 1 {
		t.Errorf("constant was packed structurally: %d entries", tab.Len())
	}

	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := back.(*graph.Object).Get("c")
	if c != any(cfg) {
		t.Error("decoded constant is not the live value")
	}
}

func TestNonFiniteRoundTrip(t *testing.T) {
	eng := newEngine(t)
	root := graph.NewObjectFrom("nan", math.NaN(), "neg", math.Inf(-1), "pos", math.Inf(1))

	data, err := eng.Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := eng.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	obj := back.(*graph.Object)
	nan, _ := obj.Get("nan")
	neg, _ := obj.Get("neg")
	pos, _ := obj.Get("pos")
	if !math.IsNaN(nan.(float64)) {
		t.Errorf("nan = %v", nan)
	}
	if !math.IsInf(neg.(float64), -1) {
		t.Errorf("neg = %v", neg)
	}
	if !math.IsInf(pos.(float64), 1) {
		t.Errorf("pos = %v", pos)
	}
}

func TestRegistrationFailureDefers(t *testing.T) {
	eng := newEngine(t)
	regs := eng.RegisterConstants("missing.name")
	reg := regs[0]
	if !reg.Deferred {
		t.Error("failed registration was not deferred")
	}
	if !errors.Is(reg.Err, ErrConstantRegistration) {
		t.Errorf("Err = %v, want ErrConstantRegistration", reg.Err)
	}
	if !errors.Is(reg.Err, scope.ErrNotFound) {
		t.Errorf("Err = %v, want it to wrap scope.ErrNotFound", reg.Err)
	}
	if !eng.Constants().IsDeferred("missing.name") {
		t.Error("name not on the deferred list")
	}

	again := eng.RegisterConstants("missing.name")[0]
	if again.Err != nil {
		t.Errorf("repeated registration reported %v", again.Err)
	}
	if got := eng.Constants().Deferred(); len(got) != 1 {
		t.Errorf("deferred list = %v", got)
	}
}

func TestDeferredSymbolLifecycle(t *testing.T) {
	s := scope.New()
	eng := newEngine(t, WithScope(s), WithDeferred("lazy.target"))

	target := graph.NewObjectFrom("id", "T")
	if err := s.Bind("lazy.target", target); err != nil {
		t.Fatal(err)
	}
	tab, err := eng.Encode(graph.NewObjectFrom("t", target))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if tab.Len() != 1 {
		t.Fatalf("deferred target was packed structurally: %d entries", tab.Len())
	}

	s.Unbind("lazy.target")
	_, err = eng.Decode(tab)
	var use *UnresolvedSymbolError
	if !errors.As(err, &use) {
		t.Fatalf("Decode with target unbound = %v, want UnresolvedSymbolError", err)
	}
	if !use.Deferred || use.Name != "lazy.target" || use.Path.String() != "$.t" {
		t.Errorf("error = %+v", use)
	}

	replacement := graph.NewObjectFrom("id", "T2")
	if err := s.Bind("lazy.target", replacement); err != nil {
		t.Fatal(err)
	}
	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatalf("Decode after bind: %v", err)
	}
	got, _ := back.(*graph.Object).Get("t")
	if got != any(replacement) {
		t.Error("deferred token did not resolve to the live value")
	}
}

func TestDeferredUnresolvableAtEncode(t *testing.T) {
	eng := newEngine(t, WithDeferred("lazy.target"))
	target := graph.NewObjectFrom("id", "T")
	tab, err := eng.Encode(graph.NewObjectFrom("t", target))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if tab.Len() != 2 {
		t.Errorf("unresolvable deferred name matched a value: %d entries", tab.Len())
	}
}

func TestConstantFallsBackToScope(t *testing.T) {
	s := scope.New()
	cfg := graph.NewObject()
	if err := s.Bind("app.cfg", cfg); err != nil {
		t.Fatal(err)
	}
	enc := newEngine(t, WithScope(s), WithConstants("app.cfg"))
	dec := newEngine(t, WithScope(s))

	data, err := enc.Marshal([]any{cfg})
	if err != nil {
		t.Fatal(err)
	}
	back, err := dec.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.([]any)[0] != any(cfg) {
		t.Error("constant not resolved through the decoding engine's scope")
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestUnknownTypeOnEncode(t *testing.T) {
	eng := newEngine(t)
	root := graph.NewObjectFrom("ok", 1, "ch", make(chan int))
	_, err := eng.Encode(root)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Encode = %v, want ErrUnknownType", err)
	}
	var ute *UnknownTypeError
	if !errors.As(err, &ute) || ute.Path.String() != "$.ch" {
		t.Errorf("error = %v, want path $.ch", err)
	}

	bare := newEngine(t, WithoutBuiltins())
	if _, err := bare.Encode(graph.NewObject()); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Encode without builtins = %v, want ErrUnknownType", err)
	}
}

func TestUnknownTypeOnDecode(t *testing.T) {
	eng := newEngine(t)
	tab := &Table{Root: Ref{Index: 0}, Entries: []*Entry{{Type: "Mystery"}}}
	_, err := eng.Decode(tab)
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Decode = %v, want ErrUnknownType", err)
	}
	if !errors.Is(err, ErrCorruptTable) {
		t.Errorf("Decode = %v, want ErrCorruptTable", err)
	}
}

func TestCorruptReference(t *testing.T) {
	eng := newEngine(t)
	tab := &Table{
		Root: Ref{Index: 0},
		Entries: []*Entry{
			{Type: "Object", Props: []Field{{Key: "bad", Value: Ref{Index: 3}}}},
		},
	}
	_, err := eng.Decode(tab)
	var cte *CorruptTableError
	if !errors.As(err, &cte) {
		t.Fatalf("Decode = %v, want CorruptTableError", err)
	}
	if cte.Index != 3 || cte.Path.String() != "$.bad" {
		t.Errorf("error = %v", err)
	}
}

func TestCorruptSlots(t *testing.T) {
	eng := newEngine(t)
	tests := []struct {
		name string
		tab  *Table
	}{
		{"junk root", &Table{Root: struct{}{}}},
		{"nil entry", &Table{Root: Ref{Index: 0}, Entries: []*Entry{nil}}},
		{"bad list index", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "List", Self: 1, Props: []Field{{Key: "5", Value: "x"}}},
		}}},
		{"ancestor on map", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "Map", Proto: "x"},
		}}},
		{"bad date", &Table{Root: &Entry{Type: "Date", Self: "yesterday"}}},
		{"huge list", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "List", Self: 1e15},
		}}},
		{"list over budget", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "List", Self: 1e10},
		}}},
		{"infinite list", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "List", Self: math.Inf(1)},
		}}},
		{"sparse array", &Table{Root: Ref{Index: 0}, Entries: []*Entry{
			{Type: "Array", Props: []Field{{Key: "5000000", Value: "x"}}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.Decode(tt.tab); !errors.Is(err, ErrCorruptTable) {
				t.Errorf("Decode = %v, want ErrCorruptTable", err)
			}
		})
	}
}

func TestConcurrentCalls(t *testing.T) {
	eng := newEngine(t)
	const workers, rounds = 16, 100

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				root := graph.NewObjectFrom("worker", w, "round", i)
				child := graph.NewObjectFrom("parent", root)
				root.Set("child", child)
				root.Set("list", []any{child, root})

				tab, err := eng.Encode(root)
				if err != nil {
					errs <- err
					return
				}
				back, err := eng.Decode(tab)
				if err != nil {
					errs <- err
					return
				}
				if !graph.Equal(root, back) {
					errs <- errors.New("decoded graph differs")
					return
				}
				obj := back.(*graph.Object)
				c, _ := obj.Get("child")
				if p, _ := c.(*graph.Object).Get("parent"); p != back {
					errs <- errors.New("cycle not restored")
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestElementBudget(t *testing.T) {
	eng := newEngine(t, WithMaxElements(4))
	tab, err := eng.Encode(graph.NewObjectFrom(
		"a", []any{1, 2},
		"b", graph.NewArray("x", "y"),
	))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := eng.Decode(tab); err != nil {
		t.Fatalf("Decode within budget: %v", err)
	}

	tab, err = eng.Encode(graph.NewObjectFrom(
		"a", []any{1, 2, 3},
		"b", graph.NewArray("x", "y"),
	))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = eng.Decode(tab)
	if !errors.Is(err, ErrCorruptTable) {
		t.Fatalf("Decode = %v, want ErrCorruptTable", err)
	}
	if !strings.Contains(err.Error(), "$.b") {
		t.Errorf("error %q does not name the array", err)
	}
}

func TestDepthExceeded(t *testing.T) {
	eng := newEngine(t, WithMaxDepth(5))
	root := graph.NewObject()
	cur := root
	for i := 0; i < 10; i++ {
		next := graph.NewObject()
		cur.Set("next", next)
		cur = next
	}
	if _, err := eng.Encode(root); !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Encode = %v, want ErrDepthExceeded", err)
	}
}

func TestHookErrorCarriesPath(t *testing.T) {
	eng := newEngine(t)
	boom := errors.New("boom")
	err := eng.Register(&Descriptor{
		Name: "Broken",
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(*point)
			return ok
		},
		Extract: func(any, string, any) (any, error) { return nil, boom },
		Build:   func(any, string, any) (any, error) { return nil, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = eng.Encode(graph.NewObjectFrom("p", &point{}))
	if !errors.Is(err, boom) {
		t.Fatalf("Encode = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "$.p") {
		t.Errorf("error %q does not name the path", err)
	}
}

// ---------------------------------------------------------------------------
// Filters and post-processing
// ---------------------------------------------------------------------------

func TestFilter(t *testing.T) {
	eng := newEngine(t)
	root := graph.NewObjectFrom(
		"secret", "hunter2",
		"n", 1,
		"inner", graph.NewObjectFrom("secret", "x", "keep", true),
	)
	tab, err := eng.Encode(root, WithFilter(func(key string, v any, _ any) (any, bool) {
		switch key {
		case "secret":
			return nil, false
		case "n":
			return 2, true
		}
		return v, true
	}))
	if err != nil {
		t.Fatal(err)
	}
	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	want := graph.NewObjectFrom("n", 2, "inner", graph.NewObjectFrom("keep", true))
	if !graph.Equal(back, want) {
		t.Error("filter output does not match")
	}
}

func TestFilterSeesAncestor(t *testing.T) {
	eng := newEngine(t)
	base := graph.NewObjectFrom("greet", "hello")
	other := graph.NewObjectFrom("greet", "hi")
	kept := graph.NewObjectFrom("own", 1)
	kept.SetAncestor(base)
	dropped := graph.NewObjectFrom("own", 2)
	dropped.SetAncestor(base)
	root := graph.NewObjectFrom("kept", kept, "dropped", dropped)

	var seen []any
	tab, err := eng.Encode(root, WithFilter(func(key string, v any, parent any) (any, bool) {
		if key != AncestorKey {
			return v, true
		}
		seen = append(seen, v)
		if parent == dropped {
			return nil, false
		}
		return other, true
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != base || seen[1] != base {
		t.Fatalf("filter saw ancestors %v, want base twice", seen)
	}

	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	obj := back.(*graph.Object)
	k, _ := obj.Get("kept")
	if v, ok := k.(*graph.Object).Lookup("greet"); !ok || v != "hi" {
		t.Errorf("substituted ancestor lookup = %v, %v", v, ok)
	}
	d, _ := obj.Get("dropped")
	if anc := d.(*graph.Object).Ancestor(); anc != nil {
		t.Errorf("dropped ancestor decoded as %v", anc)
	}
}

func TestWithKeys(t *testing.T) {
	eng := newEngine(t)
	root := graph.NewObjectFrom(
		"a", graph.NewObjectFrom("b", 1, "x", 2),
		"b", 3,
	)
	tab, err := eng.Encode(root, WithKeys("a"))
	if err != nil {
		t.Fatal(err)
	}
	back, err := eng.Decode(tab)
	if err != nil {
		t.Fatal(err)
	}
	want := graph.NewObjectFrom("a", graph.NewObjectFrom("b", 1, "x", 2))
	if !graph.Equal(back, want) {
		t.Error("WithKeys filtered below the top level or kept b")
	}
}

func TestPostProcess(t *testing.T) {
	eng := newEngine(t)
	shared := graph.NewObjectFrom("name", "s")
	root := graph.NewObjectFrom("a", "lower", "x", shared, "y", shared)
	tab, err := eng.Encode(root)
	if err != nil {
		t.Fatal(err)
	}

	var calls int
	back, err := eng.Decode(tab, WithPostProcess(func(key string, v any, _ any) any {
		calls++
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return v
	}))
	if err != nil {
		t.Fatal(err)
	}
	// root, a, x, x.name, y
	if calls != 5 {
		t.Errorf("post-process ran %d times, want 5", calls)
	}
	obj := back.(*graph.Object)
	if a, _ := obj.Get("a"); a != "LOWER" {
		t.Errorf("a = %v", a)
	}
	x, _ := obj.Get("x")
	y, _ := obj.Get("y")
	if x != y {
		t.Error("shared object split by post-processing")
	}
}

// ---------------------------------------------------------------------------
// Stats and wire tree
// ---------------------------------------------------------------------------

func TestStats(t *testing.T) {
	eng := newEngine(t)
	shared := graph.NewObjectFrom("v", 1)
	root := graph.NewObjectFrom("a", shared, "b", shared, "d", time.Unix(0, 0).UTC())
	tab, err := eng.Encode(root)
	if err != nil {
		t.Fatal(err)
	}
	st := tab.Stats()
	if st.Entries != 2 || st.Refs != 3 || st.Inline != 1 || st.Atoms != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Types["Object"] != 2 || st.Types["Date"] != 1 {
		t.Errorf("types = %v", st.Types)
	}
	if names := st.TypeNames(); len(names) != 2 || names[0] != "Date" {
		t.Errorf("TypeNames = %v", names)
	}
}

func TestTableFromTreeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		tree any
	}{
		{"not a map", []any{}},
		{"table not a list", map[string]any{"table": "x"}},
		{"entry without type", map[string]any{"table": []any{map[string]any{}}}},
		{"negative ref", map[string]any{"root": map[string]any{"$ref": -1.0}}},
		{"fractional ref", map[string]any{"root": map[string]any{"$ref": 1.5}}},
		{"list slot", map[string]any{"root": []any{1.0}}},
		{"bad pair", map[string]any{"root": map[string]any{"$type": "Object", "props": []any{[]any{"k"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := TableFromTree(tt.tree); !errors.Is(err, ErrCorruptTable) {
				t.Errorf("TableFromTree = %v, want ErrCorruptTable", err)
			}
		})
	}
}
