package unitpool

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Definition describes how one named unit is built.
//
// Build constructs the value and must be provided. The Resolver is the
// container resolving the unit, so dependencies go through the same tiers.
// Link is an optional finalize hook, run at most once per instance.
type Definition[Out any] struct {
	Build func(ctx context.Context, r Resolver, name string) (Out, error)
	Link  func(ctx context.Context, out Out) error
}

type catalogEntry struct {
	build func(ctx context.Context, r Resolver, name string) (any, error)
	link  func(ctx context.Context, out any) error
}

// Catalog is an in-memory Repository of unit definitions keyed by name.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]catalogEntry
	built map[string]*Instance
}

func NewCatalog() *Catalog {
	return &Catalog{
		defs:  make(map[string]catalogEntry),
		built: make(map[string]*Instance),
	}
}

// Register registers one unit definition with generics.
func Register[Out any](c *Catalog, name string, def Definition[Out]) error {
	if c == nil {
		return fmt.Errorf("register unit definition: catalog is nil")
	}
	if name == "" {
		return fmt.Errorf("register unit definition: name is empty")
	}
	if def.Build == nil {
		return fmt.Errorf("register unit definition: build func is nil for %s", name)
	}

	entry := catalogEntry{
		build: func(ctx context.Context, r Resolver, name string) (any, error) {
			return def.Build(ctx, r, name)
		},
	}
	if def.Link != nil {
		entry.link = func(ctx context.Context, out any) error {
			typed, ok := out.(Out)
			if !ok {
				return fmt.Errorf("link output type mismatch: want=%T got=%T", *new(Out), out)
			}
			return def.Link(ctx, typed)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[name]; exists {
		return fmt.Errorf("register unit definition: duplicate definition for %s", name)
	}
	c.defs[name] = entry
	return nil
}

// MustRegister panics on registration error; intended for bootstrap code paths.
func MustRegister[Out any](c *Catalog, name string, def Definition[Out]) {
	if err := Register(c, name, def); err != nil {
		panic(err)
	}
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Materialize builds the unit registered under name. A unit is built once;
// later calls return the same instance.
func (c *Catalog) Materialize(ctx context.Context, name string) (Unit, error) {
	c.mu.RLock()
	inst, built := c.built[name]
	entry, ok := c.defs[name]
	c.mu.RUnlock()
	if built {
		return inst, nil
	}
	if !ok {
		return nil, NotFoundError{Name: name}
	}

	var r Resolver = noDelegate{}
	if rc, ok := ResolvingContainer(ctx); ok {
		r = rc
	}
	out, err := entry.build(ctx, r, name)
	if err != nil {
		return nil, fmt.Errorf("build unit %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.built[name]; ok {
		return existing, nil
	}
	inst = &Instance{name: name, value: out, linkFn: entry.link}
	c.built[name] = inst
	return inst, nil
}

// Resolve lets a Catalog serve as a system or parent delegate.
func (c *Catalog) Resolve(ctx context.Context, name string) (Unit, error) {
	return c.Materialize(ctx, name)
}

func (c *Catalog) Materialized(name string) (Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.built[name]
	if !ok {
		return nil, false
	}
	return inst, true
}

// Instance is a unit built by a Catalog.
type Instance struct {
	name  string
	value any

	linkFn   func(ctx context.Context, out any) error
	linkOnce sync.Once
	linkErr  error
}

func (i *Instance) UnitName() string { return i.name }

// Value returns the built value.
func (i *Instance) Value() any { return i.value }

// Link runs the definition's link hook once and returns its result on every call.
func (i *Instance) Link(ctx context.Context) error {
	i.linkOnce.Do(func() {
		if i.linkFn != nil {
			i.linkErr = i.linkFn(ctx, i.value)
		}
	})
	return i.linkErr
}

// ResolveAs resolves name and casts the unit's value to T. Units exposing
// Value() are unwrapped first.
func ResolveAs[T any](ctx context.Context, r Resolver, name string) (T, error) {
	var zero T
	u, err := r.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	var v any = u
	if valuer, ok := u.(interface{ Value() any }); ok {
		v = valuer.Value()
	}
	typed, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Name:     name,
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}
