package codec

import (
	"fmt"
	"math"
	"sync"

	"github.com/chazu/knot/graph"
	"github.com/tliron/commonlog"
)

// Resolver looks up a live value by dotted path. *scope.Scope implements it.
type Resolver interface {
	Resolve(path string) (any, error)
}

// Tokens for the non-finite floats. They travel as Constant entries and are
// matched literally on decode, ahead of any registered name.
const (
	TokenNaN         = "NaN"
	TokenNegInfinity = "-Infinity"
	TokenInfinity    = "Infinity"
)

func nonFiniteToken(v any) (string, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return "", false
	}
	switch {
	case math.IsNaN(f):
		return TokenNaN, true
	case math.IsInf(f, -1):
		return TokenNegInfinity, true
	case math.IsInf(f, 1):
		return TokenInfinity, true
	}
	return "", false
}

func nonFiniteValue(token string) (float64, bool) {
	switch token {
	case TokenNaN:
		return math.NaN(), true
	case TokenNegInfinity:
		return math.Inf(-1), true
	case TokenInfinity:
		return math.Inf(1), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// ConstantRegistry: named live values and deferred names
// ---------------------------------------------------------------------------

// Registration is the outcome of registering one constant name. A name that
// fails to resolve is not an error for the caller: it is moved to the
// deferred list and Err records why.
type Registration struct {
	Name     string
	Deferred bool
	Err      error
}

// ConstantRegistry maps names to live values looked up in a scope. Values
// that match a registered constant by identity are encoded as the name alone
// and decode to the same live value.
type ConstantRegistry struct {
	mu       sync.RWMutex
	scope    Resolver
	log      commonlog.Logger
	order    []string
	values   map[string]any
	deferred []string
	isDefer  map[string]bool
}

// NewConstantRegistry creates a registry resolving names in scope.
func NewConstantRegistry(scope Resolver, log commonlog.Logger) *ConstantRegistry {
	if log == nil {
		log = commonlog.GetLogger("knot.codec")
	}
	return &ConstantRegistry{
		scope:   scope,
		log:     log,
		values:  make(map[string]any),
		isDefer: make(map[string]bool),
	}
}

// Register resolves name now and stores the live value. Names already known
// (as constants or deferred names) are left alone.
func (c *ConstantRegistry) Register(name string) Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[name]; ok {
		return Registration{Name: name}
	}
	if c.isDefer[name] {
		return Registration{Name: name, Deferred: true}
	}

	v, err := c.scope.Resolve(name)
	if err != nil {
		c.appendDeferred(name)
		c.log.Warningf("constant %q not resolvable, deferring: %s", name, err)
		return Registration{
			Name:     name,
			Deferred: true,
			Err:      fmt.Errorf("%w: %q: %w", ErrConstantRegistration, name, err),
		}
	}
	c.order = append(c.order, name)
	c.values[name] = v
	return Registration{Name: name}
}

// Defer appends name to the deferred list without resolving it.
func (c *ConstantRegistry) Defer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDefer[name] {
		return
	}
	if _, ok := c.values[name]; ok {
		return
	}
	c.appendDeferred(name)
}

func (c *ConstantRegistry) appendDeferred(name string) {
	c.deferred = append(c.deferred, name)
	c.isDefer[name] = true
}

// Lookup returns the live value registered under name.
func (c *ConstantRegistry) Lookup(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

// Names returns registered constant names in registration order.
func (c *ConstantRegistry) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Deferred returns deferred names in registration order.
func (c *ConstantRegistry) Deferred() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.deferred...)
}

// IsDeferred reports whether name is on the deferred list.
func (c *ConstantRegistry) IsDeferred(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDefer[name]
}

// ---------------------------------------------------------------------------
// Encode side
// ---------------------------------------------------------------------------

// symbolTable is the identity index one encode call matches values against.
type symbolTable struct {
	names map[any]*Entry
}

// snapshot builds the identity index. Constants come first in registration
// order, then deferred names resolved against the scope as it is now. Names
// that do not resolve, or resolve to values without identity, are skipped.
// The first name to claim an identity keeps it.
func (c *ConstantRegistry) snapshot() *symbolTable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := &symbolTable{names: make(map[any]*Entry)}
	claim := func(v any, e *Entry) {
		if graph.IsAtom(v) {
			return
		}
		k, ok := identityOf(v)
		if !ok {
			return
		}
		if _, taken := st.names[k]; !taken {
			st.names[k] = e
		}
	}
	for _, name := range c.order {
		claim(c.values[name], &Entry{Type: ConstantType, Self: name})
	}
	for _, name := range c.deferred {
		v, err := c.scope.Resolve(name)
		if err != nil {
			continue
		}
		claim(v, &Entry{Type: DeferredType, Self: name})
	}
	return st
}

// match returns the symbolic entry for v, if v is a known constant.
func (st *symbolTable) match(v any) (*Entry, bool) {
	if len(st.names) == 0 {
		return nil, false
	}
	k, ok := identityOf(v)
	if !ok {
		return nil, false
	}
	e, ok := st.names[k]
	if !ok {
		return nil, false
	}
	return &Entry{Type: e.Type, Self: e.Self}, true
}

// ---------------------------------------------------------------------------
// Decode side
// ---------------------------------------------------------------------------

// resolveToken turns a Constant or Deferred entry back into its live value.
// Deferred names are looked up in the scope on every call.
func (c *ConstantRegistry) resolveToken(e *Entry) (any, error) {
	name, ok := e.Self.(string)
	if !ok {
		return nil, corrupt(nil, -1, "%s entry has a %T name", e.Type, e.Self)
	}

	if e.Type == ConstantType {
		if f, ok := nonFiniteValue(name); ok {
			return f, nil
		}
		if v, ok := c.Lookup(name); ok {
			return v, nil
		}
	}

	v, err := c.scope.Resolve(name)
	if err != nil {
		return nil, &UnresolvedSymbolError{Name: name, Deferred: e.Type == DeferredType, Err: err}
	}
	return v, nil
}
