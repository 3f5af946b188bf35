package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chenyanchen/unitpool"
)

// unitValue is what every unit of a pool file resolves to.
type unitValue struct {
	Name   string
	Origin string
}

type pool struct {
	registry   *unitpool.Registry
	containers map[string]*unitpool.Container
	order      []string
}

// buildPool creates and starts the containers of pf, parents first.
func buildPool(ctx context.Context, pf unitpool.PoolFile, logger *slog.Logger) (*pool, error) {
	if err := pf.Validate(); err != nil {
		return nil, err
	}

	system := unitpool.NewCatalog()
	for _, name := range pf.System {
		if err := registerUnit(system, name, "system"); err != nil {
			return nil, err
		}
	}

	p := &pool{
		registry:   unitpool.NewRegistry(),
		containers: make(map[string]*unitpool.Container, len(pf.Containers)),
	}
	pending := append([]unitpool.ContainerFile(nil), pf.Containers...)
	for len(pending) > 0 {
		var next []unitpool.ContainerFile
		for _, cf := range pending {
			parent, ready := p.containers[cf.Parent]
			if cf.Parent != "" && !ready {
				next = append(next, cf)
				continue
			}
			c, err := newContainer(p.registry, system, parent, pf, cf, logger)
			if err != nil {
				return nil, err
			}
			p.containers[cf.Name] = c
			p.order = append(p.order, cf.Name)
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("pool file: parent cycle among %d containers", len(next))
		}
		pending = next
	}

	if err := p.start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newContainer(
	registry *unitpool.Registry,
	system *unitpool.Catalog,
	parent *unitpool.Container,
	pf unitpool.PoolFile,
	cf unitpool.ContainerFile,
	logger *slog.Logger,
) (*unitpool.Container, error) {
	repo := unitpool.NewCatalog()
	for _, name := range cf.Units {
		if err := registerUnit(repo, name, cf.Name); err != nil {
			return nil, err
		}
	}

	cfg := cf.Config
	if cfg.Shared == nil {
		cfg.Shared = pf.Shared
	}
	opts := []unitpool.Option{
		unitpool.WithConfig(cfg),
		unitpool.WithSystem(system),
		unitpool.WithLogger(logger),
	}
	if parent != nil {
		opts = append(opts, unitpool.WithParent(parent))
	}
	return unitpool.NewContainer(registry, repo, opts...)
}

func registerUnit(c *unitpool.Catalog, name, origin string) error {
	return unitpool.Register(c, name, unitpool.Definition[*unitValue]{
		Build: func(_ context.Context, _ unitpool.Resolver, name string) (*unitValue, error) {
			return &unitValue{Name: name, Origin: origin}, nil
		},
	})
}

// start starts the containers in order. On failure the ones already started
// are stopped again, so none stay registered.
func (p *pool) start(ctx context.Context) error {
	for i, name := range p.order {
		if err := p.containers[name].Start(ctx); err != nil {
			started := &pool{registry: p.registry, containers: p.containers, order: p.order[:i]}
			if stopErr := started.stop(context.Background()); stopErr != nil {
				return errors.Join(err, fmt.Errorf("stop started containers: %w", stopErr))
			}
			return err
		}
	}
	return nil
}

func (p *pool) stop(ctx context.Context) error {
	var firstErr error
	for i := len(p.order) - 1; i >= 0; i-- {
		if err := p.containers[p.order[i]].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
