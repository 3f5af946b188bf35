package unitpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a container.
type State int32

const (
	StateNew State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var containerSeq atomic.Uint64

// Container is an isolated resolution context with its own cache and
// repository. Started containers join their registry and share units whose
// names match the shared prefixes.
//
// Resolution order:
// 1) own memo, then own "already materialized" check
// 2) system delegate (host-reserved names cannot be shadowed)
// 3) permission check on the name's prefix
// 4) parent, when delegating first
// 5) for shared names, the caches of every other registered container
// 6) own repository
// 7) parent, when not delegating first
type Container struct {
	name     string
	registry *Registry
	repo     Repository
	cache    *LocalCache

	parent        Delegate
	system        Delegate
	shared        NameMatcher
	delegateFirst bool
	filter        func(name string) bool
	permission    PermissionChecker
	linker        Linker
	lifecycle     Lifecycle
	logger        *slog.Logger

	mu    sync.Mutex
	state atomic.Int32

	sf singleflight.Group
}

// Option configures a Container.
type Option func(*Container)

// WithName sets the label used in logs, errors and graphs.
func WithName(name string) Option {
	return func(c *Container) { c.name = name }
}

// WithParent sets the enclosing scope. Without a parent, the system delegate
// takes its place.
func WithParent(parent Delegate) Option {
	return func(c *Container) { c.parent = parent }
}

// WithSystem sets the host-level delegate probed before anything else.
func WithSystem(system Delegate) Option {
	return func(c *Container) { c.system = system }
}

// WithSharedPrefixes sets the name prefixes eligible for pool-wide sharing.
func WithSharedPrefixes(prefixes ...string) Option {
	return func(c *Container) { c.shared = NewNameMatcher(prefixes...) }
}

// WithDelegateFirst makes the parent answer before the pool and the repository.
func WithDelegateFirst(delegateFirst bool) Option {
	return func(c *Container) { c.delegateFirst = delegateFirst }
}

// WithFilter sets a predicate for names that are always delegated first.
func WithFilter(filter func(name string) bool) Option {
	return func(c *Container) { c.filter = filter }
}

func WithPermissionChecker(checker PermissionChecker) Option {
	return func(c *Container) { c.permission = checker }
}

func WithLinker(linker Linker) Option {
	return func(c *Container) { c.linker = linker }
}

func WithLifecycle(lifecycle Lifecycle) Option {
	return func(c *Container) { c.lifecycle = lifecycle }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithConfig applies the sharing and delegation settings of cfg.
func WithConfig(cfg Config) Option {
	return func(c *Container) {
		if cfg.Name != "" {
			c.name = cfg.Name
		}
		c.shared = NewNameMatcher(cfg.Shared...)
		c.delegateFirst = cfg.DelegateFirst
		if len(cfg.Filter) > 0 {
			c.filter = PrefixFilter(cfg.Filter...)
		}
	}
}

func NewContainer(registry *Registry, repo Repository, opts ...Option) (*Container, error) {
	if registry == nil {
		return nil, fmt.Errorf("new container: registry is nil")
	}

	c := &Container{
		registry: registry,
		repo:     repo,
		cache:    NewLocalCache(repo),
		system:   noDelegate{},
		linker:   defaultLinker{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = fmt.Sprintf("container-%d", containerSeq.Add(1))
	}
	if c.system == nil {
		c.system = noDelegate{}
	}
	if c.linker == nil {
		c.linker = defaultLinker{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("container", c.name))
	return c, nil
}

func (c *Container) Name() string { return c.name }

func (c *Container) String() string {
	return fmt.Sprintf("Container(%s, %s, %d units)", c.name, c.State(), c.cache.Len())
}

func (c *Container) State() State { return State(c.state.Load()) }

func (c *Container) Registry() *Registry { return c.registry }

// Parent returns the configured parent delegate, or nil.
func (c *Container) Parent() Delegate { return c.parent }

// Shared reports whether name is eligible for pool-wide sharing.
func (c *Container) Shared(name string) bool { return c.shared.Match(name) }

// Lookup is the raw memo check other containers use during a pool scan.
func (c *Container) Lookup(name string) (Unit, bool) { return c.cache.Lookup(name) }

// Resolved is the memo check plus the repository's "already materialized" check.
func (c *Container) Resolved(name string) (Unit, bool) { return c.cache.Resolved(name) }

// Units returns the names this container has resolved, sorted.
func (c *Container) Units() []string { return c.cache.Names() }

// Start runs the lifecycle base and then joins the registry.
func (c *Container) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}
	if c.lifecycle != nil {
		if err := c.lifecycle.Start(ctx); err != nil {
			return LifecycleError{Container: c.name, Op: "start", Err: err}
		}
	}
	c.registry.locked(ctx, func() {
		c.state.Store(int32(StateStarted))
		c.registry.add(c)
	})
	c.logger.DebugContext(ctx, "container started")
	return nil
}

// Stop leaves the registry and then stops the lifecycle base. The container
// leaves the registry even when the base fails to stop. Its cache stays
// queryable through existing references.
func (c *Container) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateStopped {
		return nil
	}
	wasStarted := c.State() == StateStarted
	c.registry.locked(ctx, func() {
		c.registry.remove(c)
		c.state.Store(int32(StateStopped))
	})
	if wasStarted && c.lifecycle != nil {
		if err := c.lifecycle.Stop(ctx); err != nil {
			return LifecycleError{Container: c.name, Op: "stop", Err: err}
		}
	}
	c.logger.DebugContext(ctx, "container stopped")
	return nil
}

// Resolve resolves name without linking it.
func (c *Container) Resolve(ctx context.Context, name string) (Unit, error) {
	return c.Load(ctx, name, false)
}

// Load resolves name and, when link is set, links the unit before returning it.
func (c *Container) Load(ctx context.Context, name string, link bool) (Unit, error) {
	if name == "" {
		return nil, fmt.Errorf("load unit: name is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger.DebugContext(ctx, "load unit", slog.String("name", name), slog.Bool("link", link))

	if state := c.State(); state != StateStarted {
		c.logger.InfoContext(ctx, "resolving on a container that is not started",
			slog.String("name", name),
			slog.String("state", state.String()),
			slog.Any("error", ErrStaleAccess))
	}
	if err := checkCycle(ctx, c, name); err != nil {
		return nil, err
	}

	var (
		res resolution
		err error
	)
	if r, ok := c.memo(name); ok {
		res = r
	} else if frameFrom(ctx) != nil {
		// Nested calls may hold name locks a singleflight leader is waiting on.
		res, err = c.resolve(ctx, name)
	} else {
		var v any
		v, err, _ = c.sf.Do(name, func() (any, error) {
			return c.resolve(ctx, name)
		})
		if err == nil {
			res = v.(resolution)
		}
	}
	if err != nil {
		return nil, err
	}
	if !link {
		return res.unit, nil
	}
	return res.owner.link(ctx, res.unit)
}

// Preload resolves and links names concurrently.
func (c *Container) Preload(ctx context.Context, names ...string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		name := name
		g.Go(func() error {
			if _, err := c.Load(gctx, name, true); err != nil {
				return fmt.Errorf("preload %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type resolution struct {
	unit  Unit
	owner *Container
}

// memo returns the memoized unit for name together with the container whose
// Linker links it.
func (c *Container) memo(name string) (resolution, bool) {
	e, ok := c.cache.entry(name)
	if !ok {
		return resolution{}, false
	}
	return c.fromEntry(e), true
}

// keep memoizes u as this container's own unit unless name is already bound.
func (c *Container) keep(name string, u Unit) resolution {
	return c.fromEntry(c.cache.store(name, cacheEntry{unit: u}))
}

func (c *Container) fromEntry(e cacheEntry) resolution {
	if e.owner == nil {
		return resolution{unit: e.unit, owner: c}
	}
	return resolution{unit: e.unit, owner: e.owner}
}

func (c *Container) resolve(ctx context.Context, name string) (resolution, error) {
	release := c.registry.lockName(ctx, name)
	defer release()
	ctx = pushFrame(ctx, c, name, false)
	log := c.logger.With(slog.String("name", name))

	if r, ok := c.memo(name); ok {
		log.DebugContext(ctx, "returning unit from cache")
		return r, nil
	}
	if u, ok := c.cache.Resolved(name); ok {
		log.DebugContext(ctx, "returning unit already materialized")
		return c.keep(name, u), nil
	}

	var causes []error
	if u, ok := c.probe(ctx, log, "system", c.system, name, &causes); ok {
		return c.keep(name, u), nil
	}

	if c.permission != nil {
		if prefix := packagePrefix(name); prefix != "" {
			if err := c.permission.Check(ctx, prefix); err != nil {
				denied := SecurityDeniedError{Name: name, Prefix: prefix, Err: err}
				log.InfoContext(ctx, "permission denied", slog.Any("error", denied))
				return resolution{}, denied
			}
		}
	}

	delegateFirst := c.delegateFirst || (c.filter != nil && c.filter(name))
	if delegateFirst {
		if u, ok := c.probe(ctx, log, "parent", c.upstream(), name, &causes); ok {
			return c.keep(name, u), nil
		}
	}

	var (
		res   resolution
		found bool
	)
	if c.shared.Match(name) {
		c.registry.locked(ctx, func() {
			gctx := pushFrame(ctx, c, name, true)
			if res, found = c.scanPeers(gctx, log, name); found {
				return
			}
			res, found = c.searchLocal(gctx, log, name, &causes)
		})
	} else {
		res, found = c.searchLocal(ctx, log, name, &causes)
	}
	if found {
		return res, nil
	}

	if !delegateFirst {
		if u, ok := c.probe(ctx, log, "parent", c.upstream(), name, &causes); ok {
			return c.keep(name, u), nil
		}
	}

	return resolution{}, ExhaustedError{Name: name, Causes: causes}
}

// scanPeers looks for name in the caches of the other registered containers.
// The caller holds the registry guard.
func (c *Container) scanPeers(ctx context.Context, log *slog.Logger, name string) (resolution, bool) {
	for _, other := range c.registry.containers {
		if other == c {
			continue
		}
		found, ok := other.memo(name)
		if !ok {
			var u Unit
			if u, ok = other.cache.Resolved(name); ok {
				found = resolution{unit: u, owner: other}
			}
		}
		if ok {
			log.DebugContext(ctx, "returning unit from cache of another container", slog.String("owner", found.owner.name))
			e := c.cache.store(name, cacheEntry{unit: found.unit, owner: found.owner})
			return c.fromEntry(e), true
		}
	}
	return resolution{}, false
}

func (c *Container) searchLocal(ctx context.Context, log *slog.Logger, name string, causes *[]error) (resolution, bool) {
	if c.repo == nil {
		return resolution{}, false
	}
	log.DebugContext(ctx, "searching local repository")
	u, err := c.repo.Materialize(ctx, name)
	if err != nil {
		if !missing(err, name) {
			*causes = append(*causes, fmt.Errorf("materialize in %s: %w", c.name, err))
			log.DebugContext(ctx, "local repository failed", slog.Any("error", err))
		}
		return resolution{}, false
	}
	if u == nil {
		return resolution{}, false
	}
	log.DebugContext(ctx, "loading unit from local repository")
	return c.keep(name, u), true
}

// probe asks a delegate for name. Failures never abort the search; anything
// other than name itself being absent is kept for the final error.
func (c *Container) probe(ctx context.Context, log *slog.Logger, tier string, d Delegate, name string, causes *[]error) (Unit, bool) {
	log.DebugContext(ctx, "delegating", slog.String("tier", tier))
	u, err := d.Resolve(ctx, name)
	if err != nil {
		if !missing(err, name) {
			*causes = append(*causes, fmt.Errorf("%s delegate: %w", tier, err))
			log.DebugContext(ctx, "delegate failed", slog.String("tier", tier), slog.Any("error", err))
		}
		return nil, false
	}
	if u == nil {
		return nil, false
	}
	log.DebugContext(ctx, "loading unit from delegate", slog.String("tier", tier))
	return u, true
}

func (c *Container) upstream() Delegate {
	if c.parent != nil {
		return c.parent
	}
	return c.system
}

func (c *Container) link(ctx context.Context, u Unit) (Unit, error) {
	linked, err := c.linker.Link(ctx, u)
	if err != nil {
		return nil, LinkError{Name: u.UnitName(), Err: err}
	}
	return linked, nil
}
