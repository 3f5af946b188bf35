package unitpool

import (
	"context"
	"slices"
	"sync"
)

// Registry is the pool of started containers that share units.
//
// One guard covers membership changes, iteration and the shared-name span of
// a resolution (peer scan plus local repository search), so a shared name is
// materialized by exactly one container. A hung repository inside that span
// stalls every shared-name resolution in the pool.
type Registry struct {
	guard      sync.Mutex
	containers []*Container

	locks *nameLocks
}

func NewRegistry() *Registry {
	return &Registry{
		locks: newNameLocks(),
	}
}

// Range calls fn for each registered container in registration order until fn
// returns false. Membership cannot change while Range runs.
func (r *Registry) Range(ctx context.Context, fn func(c *Container) bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	r.locked(ctx, func() {
		for _, c := range r.containers {
			if !fn(c) {
				return
			}
		}
	})
}

// Containers returns a snapshot of the registered containers. Repositories
// running inside a resolution must use Range with the resolution's context.
func (r *Registry) Containers() []*Container {
	r.guard.Lock()
	defer r.guard.Unlock()
	return slices.Clone(r.containers)
}

// Len returns the number of registered containers.
func (r *Registry) Len() int {
	r.guard.Lock()
	defer r.guard.Unlock()
	return len(r.containers)
}

// Contains reports whether c is registered.
func (r *Registry) Contains(c *Container) bool {
	r.guard.Lock()
	defer r.guard.Unlock()
	return slices.Contains(r.containers, c)
}

func (r *Registry) add(c *Container) {
	if !slices.Contains(r.containers, c) {
		r.containers = append(r.containers, c)
	}
}

func (r *Registry) remove(c *Container) {
	r.containers = slices.DeleteFunc(r.containers, func(other *Container) bool {
		return other == c
	})
}

// locked runs fn under the registry guard unless the call chain on ctx
// already holds it.
func (r *Registry) locked(ctx context.Context, fn func()) {
	if !holdsGuard(ctx, r) {
		r.guard.Lock()
		defer r.guard.Unlock()
	}
	fn()
}

// lockName serializes resolution of name across the pool unless the call
// chain on ctx already holds the name's lock.
func (r *Registry) lockName(ctx context.Context, name string) (release func()) {
	if holdsName(ctx, r, name) {
		return func() {}
	}
	return r.locks.acquire(name)
}
