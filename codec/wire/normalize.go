package wire

import (
	"fmt"

	"github.com/chazu/knot/graph"
)

// Normalize rewrites a decoded tree in place so every format yields the same
// shapes: map[any]any becomes map[string]any and numbers become float64.
// Non-string map keys are an error.
func Normalize(tree any) (any, error) {
	switch x := tree.(type) {
	case map[string]any:
		for k, v := range x {
			nv, err := Normalize(v)
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("wire: map key %v is %T, not a string", k, k)
			}
			nv, err := Normalize(v)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	case []any:
		for i, v := range x {
			nv, err := Normalize(v)
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	case bool, string, nil:
		return x, nil
	}
	if f, ok := graph.ToFloat(tree); ok {
		return f, nil
	}
	return nil, fmt.Errorf("wire: unsupported value of type %T", tree)
}
