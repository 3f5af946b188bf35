package unitpool

import (
	"context"
	"sync"
)

// nameLocks hands out one mutex per name, created on demand and dropped once
// no caller references it.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

func (l *nameLocks) acquire(name string) (release func()) {
	l.mu.Lock()
	nl, ok := l.locks[name]
	if !ok {
		nl = &nameLock{}
		l.locks[name] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.mu.Lock()
	return func() {
		nl.mu.Unlock()
		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}

func (l *nameLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// resolveFrame is one step of a resolution call chain. Frames record which
// locks the chain holds so nested resolutions do not re-acquire them.
type resolveFrame struct {
	parent    *resolveFrame
	container *Container
	name      string
	// guard marks the frame that took the registry guard.
	guard bool
}

type resolveFrameContextKey struct{}

func frameFrom(ctx context.Context) *resolveFrame {
	f, _ := ctx.Value(resolveFrameContextKey{}).(*resolveFrame)
	return f
}

func pushFrame(ctx context.Context, c *Container, name string, guard bool) context.Context {
	f := &resolveFrame{
		parent:    frameFrom(ctx),
		container: c,
		name:      name,
		guard:     guard,
	}
	return context.WithValue(ctx, resolveFrameContextKey{}, f)
}

func holdsName(ctx context.Context, reg *Registry, name string) bool {
	for f := frameFrom(ctx); f != nil; f = f.parent {
		if !f.guard && f.name == name && f.container.registry == reg {
			return true
		}
	}
	return false
}

func holdsGuard(ctx context.Context, reg *Registry) bool {
	for f := frameFrom(ctx); f != nil; f = f.parent {
		if f.guard && f.container.registry == reg {
			return true
		}
	}
	return false
}

func checkCycle(ctx context.Context, c *Container, name string) error {
	var path []string
	for f := frameFrom(ctx); f != nil; f = f.parent {
		if f.guard {
			continue
		}
		path = append(path, f.name)
		if f.container == c && f.name == name {
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return CycleDetectedError{Container: c.name, Path: append(path, name)}
		}
	}
	return nil
}

// ResolvingContainer returns the container whose resolution is in progress on
// ctx. Repositories use it to resolve dependencies through the same tiers.
func ResolvingContainer(ctx context.Context) (*Container, bool) {
	f := frameFrom(ctx)
	if f == nil {
		return nil, false
	}
	return f.container, true
}
