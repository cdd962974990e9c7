package codec

import (
	"fmt"
	"sync"
)

// Reserved descriptor names. The constant registry owns them.
const (
	ConstantType = "Constant"
	DeferredType = "Deferred"
)

// ---------------------------------------------------------------------------
// TypeRegistry: ordered descriptor list
// ---------------------------------------------------------------------------

// TypeRegistry holds descriptors in priority order. Register prepends, so
// the most recently registered descriptor wins when several match.
//
// The list is copy-on-write: Snapshot hands an encode call a slice that later
// registrations never modify.
type TypeRegistry struct {
	mu     sync.RWMutex
	list   []*Descriptor
	byName map[string]*Descriptor
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]*Descriptor)}
}

// Register prepends d. A descriptor with the same name is replaced: it is
// removed from its old position and d takes the front.
func (r *TypeRegistry) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Name == ConstantType || d.Name == DeferredType {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidDescriptor, d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Descriptor, 0, len(r.list)+1)
	list = append(list, d)
	for _, old := range r.list {
		if old.Name != d.Name {
			list = append(list, old)
		}
	}
	r.list = list
	r.byName[d.Name] = d
	return nil
}

// RegisterAll registers ds so that ds[0] ends up with the highest priority.
func (r *TypeRegistry) RegisterAll(ds ...*Descriptor) error {
	for i := len(ds) - 1; i >= 0; i-- {
		if err := r.Register(ds[i]); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the first descriptor whose Identify accepts v.
func (r *TypeRegistry) Resolve(v any, key string, parent any) (*Descriptor, error) {
	return resolveIn(r.Snapshot(), v, key, parent)
}

// ResolveByName looks up a descriptor by its registered name.
func (r *TypeRegistry) ResolveByName(name string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Name: name}
	}
	return d, nil
}

// Snapshot returns the current priority list. Callers must not modify it.
func (r *TypeRegistry) Snapshot() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list
}

// Names returns descriptor names in priority order.
func (r *TypeRegistry) Names() []string {
	list := r.Snapshot()
	names := make([]string, len(list))
	for i, d := range list {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered descriptors.
func (r *TypeRegistry) Len() int {
	return len(r.Snapshot())
}

func resolveIn(list []*Descriptor, v any, key string, parent any) (*Descriptor, error) {
	for _, d := range list {
		if d.Identify(v, key, parent) {
			return d, nil
		}
	}
	return nil, &UnknownTypeError{Value: describe(v)}
}
