package unitpool

import (
	"context"
)

// Unit is a resolved named artifact. Once published into a cache it is
// treated as immutable and shared by reference.
type Unit interface {
	UnitName() string
}

// Resolver resolves a name to a Unit.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Unit, error)
}

// Delegate is an upstream resolution authority: the host-level provider or an
// enclosing parent scope. *Container implements Delegate.
type Delegate = Resolver

// DelegateFunc adapts a function to a Delegate.
type DelegateFunc func(ctx context.Context, name string) (Unit, error)

func (f DelegateFunc) Resolve(ctx context.Context, name string) (Unit, error) {
	return f(ctx, name)
}

// Repository is a container's private store of units.
//
// Materialize produces the unit for name, or an error matching ErrNotFound.
// It must be safe for concurrent calls on different names; calls on the same
// name are serialized by the pool.
// Materialized reports a unit the repository has already produced. It must
// not block.
type Repository interface {
	Materialize(ctx context.Context, name string) (Unit, error)
	Materialized(name string) (Unit, bool)
}

// PermissionChecker guards access to a name prefix (the name up to its last
// dot). A non-nil error denies the whole resolution.
type PermissionChecker interface {
	Check(ctx context.Context, prefix string) error
}

// PermissionFunc adapts a function to a PermissionChecker.
type PermissionFunc func(ctx context.Context, prefix string) error

func (f PermissionFunc) Check(ctx context.Context, prefix string) error {
	return f(ctx, prefix)
}

// Linker finalizes a resolved unit before use. Link must be idempotent.
type Linker interface {
	Link(ctx context.Context, u Unit) (Unit, error)
}

// LinkerFunc adapts a function to a Linker.
type LinkerFunc func(ctx context.Context, u Unit) (Unit, error)

func (f LinkerFunc) Link(ctx context.Context, u Unit) (Unit, error) {
	return f(ctx, u)
}

// Linkable is implemented by units that know how to finalize themselves.
type Linkable interface {
	Link(ctx context.Context) error
}

// Lifecycle is the underlying start/stop base a container wraps.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// defaultLinker links units implementing Linkable and returns others as is.
type defaultLinker struct{}

func (defaultLinker) Link(ctx context.Context, u Unit) (Unit, error) {
	if l, ok := u.(Linkable); ok {
		if err := l.Link(ctx); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// noDelegate resolves nothing.
type noDelegate struct{}

func (noDelegate) Resolve(_ context.Context, name string) (Unit, error) {
	return nil, NotFoundError{Name: name}
}
