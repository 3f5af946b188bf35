package redeploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chenyanchen/unitpool"
)

// Deployment is one version of an application.
type Deployment struct {
	Config unitpool.Config
	// Revision identifies the repository contents, e.g. a build id.
	Revision string
}

// BuildFunc creates the (not yet started) container for a deployment.
type BuildFunc func(ctx context.Context, registry *unitpool.Registry, d Deployment) (*unitpool.Container, error)

// Result describes one redeploy.
type Result struct {
	Changed  bool
	Previous *unitpool.Container // Stopped by this redeploy, nil on first deploy.
	Current  *unitpool.Container
	Reused   []string // Shared units taken over from Previous.
}

// Redeployer keeps the active container of one application and replaces it
// when the deployment changes.
type Redeployer struct {
	registry *unitpool.Registry
	build    BuildFunc
	logger   *slog.Logger

	mu      sync.RWMutex
	current *unitpool.Container
	hash    string
}

func New(registry *unitpool.Registry, build BuildFunc) (*Redeployer, error) {
	if registry == nil {
		return nil, fmt.Errorf("new redeployer: registry is nil")
	}
	if build == nil {
		return nil, fmt.Errorf("new redeployer: build func is nil")
	}
	return &Redeployer{
		registry: registry,
		build:    build,
		logger:   slog.Default(),
	}, nil
}

// Current returns the active container, or nil before the first deploy.
func (r *Redeployer) Current() *unitpool.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Redeploy switches to d. A failed build or start keeps the current container.
func (r *Redeployer) Redeploy(ctx context.Context, d Deployment) (Result, error) {
	hash := hashDeployment(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.hash == hash {
		return Result{Current: r.current}, nil
	}

	next, err := r.build(ctx, r.registry, d)
	if err != nil {
		return Result{}, fmt.Errorf("build next container: %w", err)
	}
	if next == nil || next.Registry() != r.registry {
		return Result{}, fmt.Errorf("build next container: container is not part of the redeployer's registry")
	}
	if err := next.Start(ctx); err != nil {
		_ = next.Stop(context.Background())
		return Result{}, fmt.Errorf("start next container: %w", err)
	}

	old := r.current
	var reused []string
	if old != nil {
		reused = adoptShared(ctx, old, next, r.logger)
	}
	r.current = next
	r.hash = hash
	result := Result{Changed: true, Previous: old, Current: next, Reused: reused}
	r.logger.InfoContext(ctx, "redeployed container",
		slog.String("container", next.Name()),
		slog.String("revision", d.Revision))

	if old == nil {
		return result, nil
	}
	if err := old.Stop(ctx); err != nil {
		return result, fmt.Errorf("switch success but stop old failed: %w", err)
	}
	return result, nil
}

// Close stops the current container.
func (r *Redeployer) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Stop(ctx)
	r.current = nil
	r.hash = ""
	return err
}

// adoptShared resolves the old container's shared units on next while both
// are in the pool, so next keeps the instances the pool already uses.
func adoptShared(ctx context.Context, old, next *unitpool.Container, logger *slog.Logger) []string {
	var reused []string
	for _, name := range old.Units() {
		if !next.Shared(name) {
			continue
		}
		if _, err := next.Resolve(ctx, name); err != nil {
			logger.WarnContext(ctx, "shared unit not taken over",
				slog.String("name", name),
				slog.Any("error", err))
			continue
		}
		reused = append(reused, name)
	}
	return reused
}

func hashDeployment(d Deployment) string {
	var b strings.Builder
	b.WriteString(d.Config.Name)
	b.WriteByte('\n')
	b.WriteString(d.Revision)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatBool(d.Config.DelegateFirst))
	b.WriteByte('\n')
	// Prefix order does not change which names match.
	for _, list := range [][]string{d.Config.Shared, d.Config.Filter} {
		sorted := append([]string(nil), list...)
		sort.Strings(sorted)
		b.WriteString(strings.Join(sorted, ","))
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
