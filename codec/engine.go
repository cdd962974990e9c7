package codec

import (
	"fmt"

	"github.com/chazu/knot/codec/wire"
	"github.com/chazu/knot/scope"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Engine options
// ---------------------------------------------------------------------------

// Option configures an Engine at construction.
type Option func(*config)

type config struct {
	scope      Resolver
	types      []*Descriptor
	constants  []string
	deferred   []string
	format     string
	indent     string
	maxDepth   int
	maxElems   int
	log        commonlog.Logger
	noBuiltins bool
}

// WithScope sets the name lookup used for constants and deferred names.
// The default is an empty *scope.Scope.
func WithScope(r Resolver) Option {
	return func(c *config) { c.scope = r }
}

// WithTypes registers descriptors; ds[0] gets the highest priority.
func WithTypes(ds ...*Descriptor) Option {
	return func(c *config) { c.types = append(c.types, ds...) }
}

// WithConstants registers constant names in order.
func WithConstants(names ...string) Option {
	return func(c *config) { c.constants = append(c.constants, names...) }
}

// WithDeferred registers deferred names in order.
func WithDeferred(names ...string) Option {
	return func(c *config) { c.deferred = append(c.deferred, names...) }
}

// WithFormat selects the wire format used by Marshal and Unmarshal by name
// ("json", "cbor", "yaml").
func WithFormat(name string) Option {
	return func(c *config) { c.format = name }
}

// WithIndent sets the indentation passed to the wire format.
func WithIndent(indent string) Option {
	return func(c *config) { c.indent = indent }
}

// WithMaxDepth bounds nesting during encode and decode.
func WithMaxDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

// WithMaxElements bounds how many list and array elements one decode call
// may allocate.
func WithMaxElements(n int) Option {
	return func(c *config) { c.maxElems = n }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithoutBuiltins leaves the stock descriptors out of the type registry.
func WithoutBuiltins() Option {
	return func(c *config) { c.noBuiltins = true }
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine owns a type registry and a constant registry and runs encode and
// decode calls against them. Every call keeps its own table, so one Engine
// can serve concurrent callers. Registrations should not race with calls
// that depend on them.
type Engine struct {
	types     *TypeRegistry
	constants *ConstantRegistry
	scope     Resolver
	format    wire.Format
	indent    string
	maxDepth  int
	maxElems  int
	log       commonlog.Logger
}

// New builds an Engine. Constant registration failures are logged and the
// names deferred; they do not fail construction.
func New(opts ...Option) (*Engine, error) {
	cfg := config{format: "json", maxDepth: DefaultMaxDepth, maxElems: DefaultMaxElements}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.scope == nil {
		cfg.scope = scope.New()
	}
	if cfg.log == nil {
		cfg.log = commonlog.GetLogger("knot.codec")
	}
	if cfg.maxDepth <= 0 {
		cfg.maxDepth = DefaultMaxDepth
	}
	if cfg.maxElems <= 0 {
		cfg.maxElems = DefaultMaxElements
	}

	format, err := wire.Lookup(cfg.format)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	e := &Engine{
		types:     NewTypeRegistry(),
		constants: NewConstantRegistry(cfg.scope, cfg.log),
		scope:     cfg.scope,
		format:    format,
		indent:    cfg.indent,
		maxDepth:  cfg.maxDepth,
		maxElems:  cfg.maxElems,
		log:       cfg.log,
	}
	if !cfg.noBuiltins {
		if err := e.types.RegisterAll(Builtins()...); err != nil {
			return nil, err
		}
	}
	if err := e.types.RegisterAll(cfg.types...); err != nil {
		return nil, err
	}
	e.RegisterConstants(cfg.constants...)
	e.RegisterDeferred(cfg.deferred...)
	return e, nil
}

// Types returns the engine's type registry.
func (e *Engine) Types() *TypeRegistry { return e.types }

// Constants returns the engine's constant registry.
func (e *Engine) Constants() *ConstantRegistry { return e.constants }

// Scope returns the resolver used for constants and deferred names.
func (e *Engine) Scope() Resolver { return e.scope }

// Format returns the wire format used by Marshal and Unmarshal.
func (e *Engine) Format() wire.Format { return e.format }

// Register prepends d to the type registry.
func (e *Engine) Register(d *Descriptor) error {
	return e.types.Register(d)
}

// RegisterConstants registers each name and reports the outcome per name.
func (e *Engine) RegisterConstants(names ...string) []Registration {
	regs := make([]Registration, len(names))
	for i, name := range names {
		regs[i] = e.constants.Register(name)
	}
	return regs
}

// RegisterDeferred appends names to the deferred list.
func (e *Engine) RegisterDeferred(names ...string) {
	for _, name := range names {
		e.constants.Defer(name)
	}
}

// Encode flattens the graph rooted at v into a Table. On error no table is
// returned. v is never modified.
func (e *Engine) Encode(v any, opts ...EncodeOption) (*Table, error) {
	enc := &encoder{
		types:    e.types.Snapshot(),
		symbols:  e.constants.snapshot(),
		maxDepth: e.maxDepth,
	}
	for _, opt := range opts {
		opt(&enc.cfg)
	}
	t, err := enc.encode(v)
	if err != nil {
		return nil, err
	}
	e.log.Debugf("encoded %d entries", len(t.Entries))
	return t, nil
}

// Decode rebuilds the graph stored in t.
func (e *Engine) Decode(t *Table, opts ...DecodeOption) (any, error) {
	if t == nil {
		return nil, corrupt(Path{}, -1, "nil table")
	}
	dec := &decoder{
		types:     e.types,
		constants: e.constants,
		maxDepth:  e.maxDepth,
		elements:  e.maxElems,
	}
	for _, opt := range opts {
		opt(&dec.cfg)
	}
	v, err := dec.decode(t)
	if err != nil {
		return nil, err
	}
	e.log.Debugf("decoded %d entries", len(t.Entries))
	return v, nil
}

// Marshal encodes v and writes the table in the engine's wire format.
func (e *Engine) Marshal(v any, opts ...EncodeOption) ([]byte, error) {
	t, err := e.Encode(v, opts...)
	if err != nil {
		return nil, err
	}
	return e.MarshalTable(t)
}

// Unmarshal reads a table in the engine's wire format and decodes it.
func (e *Engine) Unmarshal(data []byte, opts ...DecodeOption) (any, error) {
	t, err := e.UnmarshalTable(data)
	if err != nil {
		return nil, err
	}
	return e.Decode(t, opts...)
}

// MarshalTable writes t in the engine's wire format.
func (e *Engine) MarshalTable(t *Table) ([]byte, error) {
	return MarshalTable(e.format, t, e.indent)
}

// UnmarshalTable reads a table in the engine's wire format without decoding
// it.
func (e *Engine) UnmarshalTable(data []byte) (*Table, error) {
	return UnmarshalTable(e.format, data)
}

// MarshalTable writes t in format f.
func MarshalTable(f wire.Format, t *Table, indent string) ([]byte, error) {
	return f.Marshal(t.Tree(), indent)
}

// UnmarshalTable reads a table written in format f.
func UnmarshalTable(f wire.Format, data []byte) (*Table, error) {
	tree, err := f.Unmarshal(data)
	if err != nil {
		return nil, &CorruptTableError{Path: Path{}, Index: -1, Reason: "unreadable " + f.Name() + " document", Err: err}
	}
	return TableFromTree(tree)
}
