package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/knot/codec"
	"github.com/chazu/knot/codec/wire"
)

// ErrInvalidName is returned for a constant or deferred name that cannot be
// looked up.
var ErrInvalidName = errors.New("invalid symbol name")

// reservedNames are the tokens the codec uses for non-finite floats. A
// constant with one of these names could never be decoded.
var reservedNames = map[string]bool{
	codec.TokenNaN:         true,
	codec.TokenInfinity:    true,
	codec.TokenNegInfinity: true,
}

// IsReservedName reports whether name collides with a built-in token.
func IsReservedName(name string) bool {
	return reservedNames[name]
}

// ValidateName checks that name is a dotted path of non-empty segments
// without whitespace and is not a reserved token.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if IsReservedName(name) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidName, name)
		}
		if strings.ContainsAny(seg, " \t\r\n") {
			return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
		}
	}
	return nil
}

// Validate checks the codec section: a known format, well-formed symbol
// names, and no name listed as both constant and deferred.
func (m *Manifest) Validate() error {
	if _, err := wire.Lookup(m.Codec.Format); err != nil {
		return err
	}

	seen := make(map[string]string)
	check := func(kind string, names []string) error {
		for _, n := range names {
			if err := ValidateName(n); err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			if prev, ok := seen[n]; ok {
				return fmt.Errorf("%s: %q already listed in %s", kind, n, prev)
			}
			seen[n] = kind
		}
		return nil
	}
	if err := check("constants", m.Codec.Constants); err != nil {
		return err
	}
	return check("deferred", m.Codec.Deferred)
}
