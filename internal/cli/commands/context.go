// Package commands provides the shared context type and all CLI subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/f9-o/enclave/internal/core/config"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/metrics"
	"github.com/f9-o/enclave/internal/orchestrator"
	"github.com/f9-o/enclave/internal/registry"
	"github.com/f9-o/enclave/internal/runtime"
)

// contextKey is the key type for values stored in a command context.
type contextKey string

const runtimeContextKey contextKey = "enclave.runtime"

// GlobalFlags holds the parsed global flags for use by subcommands.
type GlobalFlags struct {
	Debug      bool
	JSONOutput bool
	Ephemeral  bool
}

// Runtime is the shared dependency bundle injected into each subcommand via context.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	Store  registry.Store
	Flags  GlobalFlags
}

// NewContext returns a new context carrying the Runtime.
func NewContext(parent context.Context, rt *Runtime) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, runtimeContextKey, rt)
}

// FromContext extracts the Runtime from ctx. Panics if not present (programming error).
func FromContext(ctx context.Context) *Runtime {
	rt, ok := ctx.Value(runtimeContextKey).(*Runtime)
	if !ok || rt == nil {
		panic("enclave: Runtime not found in context — missing PersistentPreRunE?")
	}
	return rt
}

// Connect builds the container runtime client and a lifecycle manager for a
// one-shot command. The caller must Close the returned client. Background
// services (collector, scheduler, plugins) are wired only by `enclave agent`.
func (rt *Runtime) Connect() (*runtime.Client, *orchestrator.Manager, error) {
	client, err := runtime.NewClient(
		rt.Config.Runtime.Host,
		rt.Config.Runtime.SSHKey,
		rt.Config.Runtime.KnownHosts,
		rt.Log,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: %w", err)
	}

	bus := events.NewBus(rt.Config.Events.Buffer, rt.Log)
	mgr := orchestrator.NewManager(client, rt.Store, bus, nil, nil, rt.Config, rt.Log)
	return client, mgr, nil
}

// ConnectServices builds the full service set for long-running commands: the
// event bus, metrics collector and a manager wired to both.
func (rt *Runtime) ConnectServices() (*runtime.Client, *orchestrator.Manager, *events.Bus, *metrics.Collector, error) {
	client, err := runtime.NewClient(
		rt.Config.Runtime.Host,
		rt.Config.Runtime.SSHKey,
		rt.Config.Runtime.KnownHosts,
		rt.Log,
	)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("runtime: %w", err)
	}

	bus := events.NewBus(rt.Config.Events.Buffer, rt.Log)
	collector := metrics.NewCollector(client, rt.Store, bus, rt.Config.Metrics.Interval, rt.Log)
	mgr := orchestrator.NewManager(client, rt.Store, bus, collector, nil, rt.Config, rt.Log)
	return client, mgr, bus, collector, nil
}
