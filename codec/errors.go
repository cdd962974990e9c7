package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Codec Error Types
// ---------------------------------------------------------------------------

var (
	ErrUnknownType          = errors.New("unknown type")
	ErrCorruptTable         = errors.New("corrupt table")
	ErrUnresolvedSymbol     = errors.New("unresolved symbol")
	ErrConstantRegistration = errors.New("constant registration failed")
	ErrDepthExceeded        = errors.New("maximum depth exceeded")
	ErrInvalidDescriptor    = errors.New("invalid descriptor")
)

// Path is the chain of property keys from the root to a value.
type Path []string

// String renders the path as "$", "$.a", "$.a.0" and so on.
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, k := range p {
		sb.WriteByte('.')
		sb.WriteString(k)
	}
	return sb.String()
}

// child returns a new path extended by key. The receiver is never aliased.
func (p Path) child(key string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = key
	return out
}

// UnknownTypeError reports a value no descriptor accepts (encode) or a type
// name the registry does not know (decode). Decode-time failures also match
// ErrCorruptTable.
type UnknownTypeError struct {
	Path  Path
	Name  string // set when decoding
	Value string // set when encoding
}

func (e *UnknownTypeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("codec: unknown type %q at %s", e.Name, e.Path)
	}
	return fmt.Sprintf("codec: no descriptor for %s at %s", e.Value, e.Path)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType || (e.Name != "" && target == ErrCorruptTable)
}

// CorruptTableError reports a table that cannot be decoded: an out-of-range
// reference, a malformed wire tree, or a property that cannot be attached.
type CorruptTableError struct {
	Path   Path
	Index  int // offending table index, or -1
	Reason string
	Err    error
}

func (e *CorruptTableError) Error() string {
	msg := fmt.Sprintf("codec: corrupt table at %s: %s", e.Path, e.Reason)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" (index %d)", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptTableError) Is(target error) bool { return target == ErrCorruptTable }
func (e *CorruptTableError) Unwrap() error        { return e.Err }

func corrupt(path Path, index int, format string, args ...any) *CorruptTableError {
	return &CorruptTableError{Path: path, Index: index, Reason: fmt.Sprintf(format, args...)}
}

// UnresolvedSymbolError reports a constant or deferred token that the scope
// cannot resolve at decode time.
type UnresolvedSymbolError struct {
	Path     Path
	Name     string
	Deferred bool
	Err      error
}

func (e *UnresolvedSymbolError) Error() string {
	kind := "constant"
	if e.Deferred {
		kind = "deferred symbol"
	}
	msg := fmt.Sprintf("codec: unresolved %s %q at %s", kind, e.Name, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnresolvedSymbolError) Is(target error) bool { return target == ErrUnresolvedSymbol }
func (e *UnresolvedSymbolError) Unwrap() error        { return e.Err }

// withPath fills in the path of codec errors raised by descriptor hooks, which
// do not know where in the graph they were called.
func withPath(err error, path Path) error {
	var ute *UnknownTypeError
	if errors.As(err, &ute) && ute.Path == nil {
		ute.Path = path
		return err
	}
	var use *UnresolvedSymbolError
	if errors.As(err, &use) && use.Path == nil {
		use.Path = path
		return err
	}
	var cte *CorruptTableError
	if errors.As(err, &cte) && cte.Path == nil {
		cte.Path = path
		return err
	}
	return err
}

// describe names a value's type. Values are not printed: they may be cyclic.
func describe(v any) string {
	return fmt.Sprintf("%T", v)
}
