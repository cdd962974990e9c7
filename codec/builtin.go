package codec

import (
	"time"

	"github.com/chazu/knot/graph"
)

// ---------------------------------------------------------------------------
// Stock descriptors
// ---------------------------------------------------------------------------

// Builtins returns the stock descriptors in priority order. Unknown is last
// and accepts everything, so it must stay at the back of the list.
func Builtins() []*Descriptor {
	return []*Descriptor{
		ObjectDescriptor(),
		ArrayDescriptor(),
		MapDescriptor(),
		ListDescriptor(),
		DateDescriptor(),
		UnknownDescriptor(),
	}
}

// ObjectDescriptor handles *graph.Object, ancestor link included.
func ObjectDescriptor() *Descriptor {
	return &Descriptor{
		Name:     "Object",
		Storage:  ByReference,
		Children: ChildrenAuto,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(*graph.Object)
			return ok
		},
		Build: func(any, string, any) (any, error) {
			return graph.NewObject(), nil
		},
	}
}

// ArrayDescriptor handles *graph.Array.
func ArrayDescriptor() *Descriptor {
	return &Descriptor{
		Name:     "Array",
		Storage:  ByReference,
		Children: ChildrenAuto,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(*graph.Array)
			return ok
		},
		Build: func(any, string, any) (any, error) {
			return graph.NewArray(), nil
		},
	}
}

// MapDescriptor handles map[string]any. Keys are packed in sorted order.
func MapDescriptor() *Descriptor {
	return &Descriptor{
		Name:     "Map",
		Storage:  ByReference,
		Children: ChildrenAuto,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(map[string]any)
			return ok
		},
		Build: func(any, string, any) (any, error) {
			return make(map[string]any), nil
		},
	}
}

// ListDescriptor handles []any. The scalar is the length, so the decoder
// can allocate the backing array before any element is attached.
func ListDescriptor() *Descriptor {
	return &Descriptor{
		Name:     "List",
		Storage:  ByReference,
		Children: ChildrenAuto,
		sized:    true,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.([]any)
			return ok
		},
		Extract: func(v any, _ string, _ any) (any, error) {
			return len(v.([]any)), nil
		},
		Build: func(scalar any, _ string, _ any) (any, error) {
			f, ok := graph.ToFloat(scalar)
			if !ok || f < 0 || f != float64(int(f)) {
				return nil, corrupt(nil, -1, "List length is %v", scalar)
			}
			return make([]any, int(f)), nil
		},
	}
}

// DateDescriptor handles time.Time by value as an RFC 3339 string with
// nanoseconds.
func DateDescriptor() *Descriptor {
	return &Descriptor{
		Name:    "Date",
		Storage: ByValue,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(time.Time)
			return ok
		},
		Extract: func(v any, _ string, _ any) (any, error) {
			return v.(time.Time).Format(time.RFC3339Nano), nil
		},
		Build: func(scalar any, _ string, _ any) (any, error) {
			s, ok := scalar.(string)
			if !ok {
				return nil, corrupt(nil, -1, "Date scalar is %T", scalar)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, &CorruptTableError{Index: -1, Reason: "bad Date", Err: err}
			}
			return t, nil
		},
	}
}

// UnknownDescriptor accepts every value and fails to pack it. It turns an
// unsupported value into an UnknownTypeError naming its Go type.
func UnknownDescriptor() *Descriptor {
	return &Descriptor{
		Name:    "Unknown",
		Storage: ByValue,
		Identify: func(any, string, any) bool {
			return true
		},
		Extract: func(v any, _ string, _ any) (any, error) {
			return nil, &UnknownTypeError{Value: describe(v)}
		},
		Build: func(any, string, any) (any, error) {
			return nil, &UnknownTypeError{Name: "Unknown"}
		},
	}
}
