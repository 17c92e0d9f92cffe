// Package orchestrator implements the environment lifecycle: provisioning,
// deploys, promotion and teardown. All registry writes for environments go
// through the Manager.
package orchestrator

import (
	"context"
	"io"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/config"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/core/plugin"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/metrics"
	"github.com/f9-o/enclave/internal/registry"
	"github.com/f9-o/enclave/internal/runtime"
	"github.com/f9-o/enclave/pkg/errs"
)

// Runtime is the slice of the container runtime the lifecycle manager needs.
// *runtime.Client satisfies it; tests substitute a fake.
type Runtime interface {
	Ping(ctx context.Context) error
	CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	RemoveNetwork(ctx context.Context, id string) error
	CreateSandbox(ctx context.Context, spec runtime.SandboxSpec) (string, error)
	StopSandbox(ctx context.Context, id string, remove bool) error
	Exec(ctx context.Context, containerID string, cmd []string, workDir string) (runtime.ExecResult, error)
	CopyDirTo(ctx context.Context, containerID, srcDir, dstPath string) error
	InspectRunning(ctx context.Context, id string) (bool, error)
	DiscoverSandboxes(ctx context.Context) ([]runtime.DiscoveredSandbox, error)
	Logs(ctx context.Context, containerID string, follow bool, tail string, w io.Writer) error
}

// Manager coordinates environment lifecycle operations.
type Manager struct {
	runtime   Runtime
	store     registry.Store
	bus       *events.Bus
	collector *metrics.Collector // nil disables metric tracking
	plugins   *plugin.Host       // nil disables hooks
	cfg       *config.Config
	log       *logger.Logger
}

// NewManager constructs a Manager. collector and plugins may be nil for
// one-shot invocations that do not run background services.
func NewManager(rt Runtime, store registry.Store, bus *events.Bus, collector *metrics.Collector, plugins *plugin.Host, cfg *config.Config, log *logger.Logger) *Manager {
	return &Manager{
		runtime:   rt,
		store:     store,
		bus:       bus,
		collector: collector,
		plugins:   plugins,
		cfg:       cfg,
		log:       log,
	}
}

// Get returns the environment record for id.
func (m *Manager) Get(id string) (*v1.Environment, error) {
	env, err := m.store.GetEnvironment(id)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreRead, "get.environment").WithResource(id)
	}
	if env == nil {
		return nil, errs.Newf(errs.ErrNotFound, "get.environment", "environment %q not found", id).
			WithResource(id).
			WithAdvice("Run: enclave list")
	}
	return env, nil
}

// List returns all registered environments.
func (m *Manager) List() ([]v1.Environment, error) {
	envs, err := m.store.ListEnvironments()
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreRead, "list.environments")
	}
	return envs, nil
}

// StatusReport is the composed per-environment view for the status surface.
type StatusReport struct {
	Environment v1.Environment  `json:"environment"`
	Running     bool            `json:"running"`
	Deployments []v1.Deployment `json:"deployments"`
	Promotions  []v1.Promotion  `json:"promotions"`
}

// Status composes the registry record, live runtime state and the deploy and
// promotion history for one environment.
func (m *Manager) Status(ctx context.Context, id string) (*StatusReport, error) {
	env, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	running, err := m.runtime.InspectRunning(ctx, env.Handles.ComputeID)
	if err != nil {
		m.log.Warn("status: runtime inspect failed", "environment", id, "err", err)
	}

	deps, err := m.store.ListDeployments(id)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreRead, "status.deployments").WithResource(id)
	}
	proms, err := m.store.ListPromotions(id)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreRead, "status.promotions").WithResource(id)
	}

	return &StatusReport{
		Environment: *env,
		Running:     running,
		Deployments: deps,
		Promotions:  proms,
	}, nil
}

// UpdateConfig replaces the stored creation-time configuration. Resource and
// image changes take effect on the next deploy; running sandboxes are not
// reconfigured in place.
func (m *Manager) UpdateConfig(id string, cfg v1.EnvironmentConfig) error {
	found, err := m.store.UpdateEnvironment(id, func(env *v1.Environment) {
		env.Config = cfg
	})
	if err != nil {
		return errs.Wrap(err, errs.ErrStoreWrite, "update.config").WithResource(id)
	}
	if !found {
		return errs.Newf(errs.ErrNotFound, "update.config", "environment %q not found", id).
			WithResource(id).
			WithAdvice("Run: enclave list")
	}
	m.log.Info("environment config updated", "environment", id)
	return nil
}

// Logs writes the compute sandbox log tail for an environment to w.
func (m *Manager) Logs(ctx context.Context, id string, follow bool, tail string, w io.Writer) error {
	env, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.runtime.Logs(ctx, env.Handles.ComputeID, follow, tail, w)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (m *Manager) track(env v1.Environment) {
	if m.collector != nil {
		m.collector.Track(context.Background(), env)
	}
}

func (m *Manager) untrack(id string) {
	if m.collector != nil {
		m.collector.Untrack(id)
	}
}

func (m *Manager) fire(ctx context.Context, hook string, hctx v1.HookContext) {
	if m.plugins != nil {
		m.plugins.Fire(ctx, hook, hctx)
	}
}
