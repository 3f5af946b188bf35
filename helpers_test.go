package unitpool

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type testUnit struct {
	name   string
	origin string
}

func (u *testUnit) UnitName() string { return u.name }

// countingCatalog registers names whose builds are counted.
type countingCatalog struct {
	*Catalog
	builds atomic.Int32
}

func newCountingCatalog(t *testing.T, origin string, names ...string) *countingCatalog {
	t.Helper()
	cc := &countingCatalog{Catalog: NewCatalog()}
	for _, name := range names {
		require.NoError(t, Register(cc.Catalog, name, Definition[*testUnit]{
			Build: func(_ context.Context, _ Resolver, name string) (*testUnit, error) {
				cc.builds.Add(1)
				return &testUnit{name: name, origin: origin}, nil
			},
		}))
	}
	return cc
}

// countingDelegate resolves names with a prefix and counts every call.
type countingDelegate struct {
	prefix string
	calls  atomic.Int32

	mu    sync.Mutex
	units map[string]*testUnit
}

func newCountingDelegate(prefix string) *countingDelegate {
	return &countingDelegate{prefix: prefix, units: make(map[string]*testUnit)}
}

func (d *countingDelegate) Resolve(_ context.Context, name string) (Unit, error) {
	d.calls.Add(1)
	if d.prefix == "" || len(name) < len(d.prefix) || name[:len(d.prefix)] != d.prefix {
		return nil, NotFoundError{Name: name}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[name]
	if !ok {
		u = &testUnit{name: name, origin: "delegate"}
		d.units[name] = u
	}
	return u, nil
}

func newStartedContainer(t *testing.T, reg *Registry, repo Repository, opts ...Option) *Container {
	t.Helper()
	c, err := NewContainer(reg, repo, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newBufferLogger(level slog.Level) (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})), buf
}
