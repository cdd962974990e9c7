package graph

import (
	"math"
	"reflect"
	"sort"
	"time"
)

// Equal reports whether a and b are structurally equal graphs. Numbers compare
// by value regardless of Go type, NaN equals NaN, and cycles are handled by
// assuming a pair of nodes equal while it is being compared.
func Equal(a, b any) bool {
	c := &comparer{assumed: make(map[[2]uintptr]bool)}
	return c.equal(a, b)
}

type comparer struct {
	assumed map[[2]uintptr]bool
}

// enter records a pair of reference nodes. It returns false when the pair is
// already under comparison higher up the stack.
func (c *comparer) enter(a, b any) bool {
	key := [2]uintptr{reflect.ValueOf(a).Pointer(), reflect.ValueOf(b).Pointer()}
	if c.assumed[key] {
		return false
	}
	c.assumed[key] = true
	return true
}

func (c *comparer) equal(a, b any) bool {
	if IsNil(a) || IsNil(b) {
		return IsNil(a) && IsNil(b)
	}
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return math.IsNaN(fa) && math.IsNaN(fb)
		}
		return fa == fb
	}

	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		if !ok {
			return false
		}
		if x == y || !c.enter(x, y) {
			return true
		}
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			if y.keys[i] != k || !c.equal(x.values[k], y.values[k]) {
				return false
			}
		}
		return c.equal(x.ancestor, y.ancestor)

	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false
		}
		if x == y || !c.enter(x, y) {
			return true
		}
		return c.equalSlices(x.items, y.items)

	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		if !c.enter(x, y) {
			return true
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			yv, ok := y[k]
			if !ok || !c.equal(x[k], yv) {
				return false
			}
		}
		return true

	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		if len(x) > 0 && !c.enter(x, y) {
			return true
		}
		return c.equalSlices(x, y)

	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}

	return reflect.DeepEqual(a, b)
}

func (c *comparer) equalSlices(x, y []any) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !c.equal(x[i], y[i]) {
			return false
		}
	}
	return true
}
